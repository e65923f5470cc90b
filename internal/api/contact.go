package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/store"
)

type contactCreate struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Subject string `json:"subject" validate:"required,min=5,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

func messageError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return respond.NewError(http.StatusNotFound, "Message not found")
	}
	return err
}

func messageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, respond.NewError(http.StatusUnprocessableEntity, "Invalid field: id")
	}
	return id, nil
}

func (api *API) createMessage(w http.ResponseWriter, r *http.Request) error {
	var in contactCreate
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	in.Name = stripTags(in.Name)
	in.Subject = stripTags(in.Subject)
	in.Message = stripTags(in.Message)
	in.Email = strings.TrimSpace(in.Email)
	if err := api.check(r, in); err != nil {
		return err
	}

	m := &store.ContactMessage{Name: in.Name, Email: in.Email, Subject: in.Subject, Message: in.Message}
	if err := api.store.CreateMessage(r.Context(), m); err != nil {
		return err
	}
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "contact message received", "message_id", m.ID)
	respond.JSON(w, http.StatusCreated, m)
	return nil
}

func (api *API) listMessages(w http.ResponseWriter, r *http.Request) error {
	list, err := api.store.ListMessages(r.Context())
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, list)
	return nil
}

func (api *API) getMessage(w http.ResponseWriter, r *http.Request) error {
	id, err := messageID(r)
	if err != nil {
		return err
	}
	m, err := api.store.Message(r.Context(), id)
	if err != nil {
		return messageError(err)
	}
	respond.JSON(w, http.StatusOK, m)
	return nil
}

func (api *API) markRead(w http.ResponseWriter, r *http.Request) error {
	id, err := messageID(r)
	if err != nil {
		return err
	}
	m, err := api.store.MarkRead(r.Context(), id)
	if err != nil {
		return messageError(err)
	}
	respond.JSON(w, http.StatusOK, m)
	return nil
}

func (api *API) deleteMessage(w http.ResponseWriter, r *http.Request) error {
	id, err := messageID(r)
	if err != nil {
		return err
	}
	if err := api.store.DeleteMessage(r.Context(), id); err != nil {
		return messageError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
