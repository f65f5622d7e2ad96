package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/middleware"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = apperr.Validation("Request body is required")

// responder writes the response envelope shared by every route.
type responder struct {
	logger *log.Logger
}

func (rs responder) write(w http.ResponseWriter, status int, body models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rs.logger.WithError(err).Warn("Failed to write response")
	}
}

func (rs responder) ok(w http.ResponseWriter, status int, data interface{}) {
	rs.write(w, status, models.Envelope{Success: true, Data: data})
}

func (rs responder) list(w http.ResponseWriter, data interface{}, count int) {
	rs.write(w, http.StatusOK, models.Envelope{Success: true, Count: &count, Data: data})
}

func (rs responder) message(w http.ResponseWriter, status int, msg string) {
	rs.write(w, status, models.Envelope{Success: status < 400, Message: msg})
}

// fail maps err to its status. Internal causes are logged and replaced by
// fallback unless the service already chose a safe message.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.KindInternal {
		entry := rs.logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		entry.Error(fallback)
	}
	rs.message(w, status, apperr.MessageOf(err, fallback))
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return apperr.Validation("Invalid request body")
	}
	return nil
}

// currentUser returns the authenticated user. Routes calling it are always
// wrapped by Authenticate.
func currentUser(r *http.Request) (*models.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("Not authorized to access this route")
	}
	return user, nil
}

func currentUserID(r *http.Request) (primitive.ObjectID, error) {
	user, err := currentUser(r)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return user.ID, nil
}
