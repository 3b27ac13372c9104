package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Ticket ────────────────────────────────────────────────────────
	ErrTicketRequired ErrCode = "TICKET_REQUIRED"
	ErrTicketInvalid  ErrCode = "TICKET_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrTestNotFound     ErrCode = "TEST_NOT_FOUND"
	ErrTestNotAvailable ErrCode = "TEST_NOT_AVAILABLE"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrUnknownQuestion  ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownAnswer    ErrCode = "UNKNOWN_ANSWER"
	ErrUpstreamRejected ErrCode = "UPSTREAM_REJECTED"
	ErrUnknownSignal    ErrCode = "UNKNOWN_SIGNAL"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Ticket ────────────────────────────────────────────────────────
	case ErrTicketRequired:
		return "Tiket sesi kuis diperlukan."
	case ErrTicketInvalid:
		return "Tiket sesi kuis tidak valid atau telah kedaluwarsa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrTestNotFound:
		return "Token tes tidak ditemukan."
	case ErrTestNotAvailable:
		return "Tes ini saat ini tidak tersedia."
	case ErrNoQuestions:
		return "Tes ini tidak memiliki pertanyaan."
	case ErrSessionNotFound:
		return "Sesi kuis tidak ditemukan atau sudah selesai."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak termasuk dalam tes ini."
	case ErrUnknownAnswer:
		return "Jawaban tidak termasuk dalam pertanyaan ini."
	case ErrUpstreamRejected:
		return "Permintaan ditolak oleh server kuis."
	case ErrUnknownSignal:
		return "Jenis sinyal tidak dikenal."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrUpstreamUnavailable:
		return "Server kuis sedang tidak dapat dihubungi. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// Status returns the HTTP status a code is usually sent with.
func Status(code ErrCode) int {
	switch code {
	case ErrTicketRequired, ErrTicketInvalid:
		return http.StatusUnauthorized
	case ErrValidation, ErrInvalidID, ErrInvalidPayload, ErrUnknownQuestion, ErrUnknownAnswer, ErrUnknownSignal:
		return http.StatusBadRequest
	case ErrNotFound, ErrTestNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrTestNotAvailable, ErrNoQuestions, ErrUpstreamRejected:
		return http.StatusUnprocessableEntity
	case ErrUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
