package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lolplq101/valcomps/internal/code"
	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
	"github.com/lolplq101/valcomps/internal/service/auth"
	"github.com/lolplq101/valcomps/internal/service/comp"
	"github.com/lolplq101/valcomps/internal/service/team"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses. Anything
// unmapped is a storage or transport failure: logged and reported as 500
// without leaking the internal message.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	status, known := serviceErrorStatus(err)
	if !known {
		r.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func serviceErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, team.ErrNameRequired),
		errors.Is(err, team.ErrCodeRequired),
		errors.Is(err, team.ErrInvalidRole),
		errors.Is(err, comp.ErrUnknownMap),
		errors.Is(err, comp.ErrUnknownAgent),
		errors.Is(err, comp.ErrTooManyAgents),
		errors.Is(err, comp.ErrCodeRequired),
		errors.Is(err, domain.ErrNoTeamName),
		errors.Is(err, domain.ErrNoNamedPlayers),
		errors.Is(err, domain.ErrSubstituteLimit),
		errors.Is(err, domain.ErrCoreSlot),
		errors.Is(err, domain.ErrSlotIndex),
		errors.Is(err, auth.ErrEmailRequired),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, repository.ErrInvalidArgument):
		return http.StatusBadRequest, true
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenRequired):
		return http.StatusUnauthorized, true
	case errors.Is(err, team.ErrNotAuthorized),
		errors.Is(err, team.ErrCaptainLeaving),
		errors.Is(err, team.ErrSelfTarget),
		errors.Is(err, team.ErrTargetCaptain):
		return http.StatusForbidden, true
	case errors.Is(err, team.ErrCodeNotFound),
		errors.Is(err, team.ErrNotInTeam),
		errors.Is(err, team.ErrMemberNotFound),
		errors.Is(err, comp.ErrCompNotFound),
		errors.Is(err, comp.ErrCodeNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, team.ErrAlreadyInTeam),
		errors.Is(err, team.ErrTeamFull),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, true
	case errors.Is(err, code.ErrExhausted):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}
