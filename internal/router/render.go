package router

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/accounts"
	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
)

// Inline messages shown by the pages.
const (
	MessageNotLoggedIn    = "Error: User not logged in."
	MessageNoAccounts     = "No accounts found."
	MessageUnexpected     = "Error: An unexpected error occurred."
	MessageInvalidInput   = "Error: Please correct the fields below."
	MessageBadCredentials = "Error: Invalid email or password."
	MessageUserExists     = "Error: A user with this email already exists."
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(
	template.New("pages").
		Funcs(template.FuncMap{
			"money": func(amount decimal.Decimal) string { return amount.StringFixed(2) },
			"date":  func(t time.Time) string { return t.Format("Jan 2, 2006") },
		}).
		ParseFS(templatesFS, "templates/*.html"),
)

type pageData struct {
	Title    string
	User     *models.User
	Message  string
	Fields   []apperr.FieldError
	Form     map[string]string
	Summary  *models.AccountsSummary
	Detail   *models.AccountDetail
	Selected string
}

func renderPage(name string, data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeHTML(response http.ResponseWriter, status int, body []byte) {
	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	response.WriteHeader(status)
	if _, err := response.Write(body); err != nil {
		logger.Log.Debugln("Error calling the `response.Write()`: ", zap.Error(err))
	}
}

func (router *Router) render(response http.ResponseWriter, status int, name string, data pageData) {
	body, err := renderPage(name, data)
	if err != nil {
		logger.Log.Errorw("page rendering failed", "page", name, zap.Error(err))
		http.Error(response, MessageUnexpected, http.StatusInternalServerError)
		return
	}

	writeHTML(response, status, body)
}

// classify maps a workflow error onto the page status and inline message.
func classify(err error) (int, string) {
	switch {
	case apperr.IsNoSession(err):
		return http.StatusUnauthorized, MessageNotLoggedIn
	case errors.Is(err, accounts.ErrBankNotFound):
		return http.StatusNotFound, MessageNoAccounts
	case apperr.IsValidation(err):
		return http.StatusUnprocessableEntity, MessageInvalidInput
	default:
		return http.StatusInternalServerError, MessageUnexpected
	}
}

func fieldsOf(err error) []apperr.FieldError {
	var validationErr *apperr.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

func (router *Router) renderError(response http.ResponseWriter, name string, data pageData, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "page", name, zap.Error(err))
	}
	data.Message = message
	data.Fields = fieldsOf(err)

	router.render(response, status, name, data)
}

// cachedPage serves the user's copy of a page from the page cache, building
// and storing it on a miss. Failed builds are never cached.
func (router *Router) cachedPage(
	response http.ResponseWriter,
	request *http.Request,
	user *models.User,
	key string,
	name string,
	build func() (pageData, error),
) {
	ctx := request.Context()
	if body, ok := router.pages.Get(ctx, user.ID, key); ok {
		writeHTML(response, http.StatusOK, body)
		return
	}

	data, err := build()
	if err != nil {
		router.renderError(response, name, data, err)
		return
	}

	body, err := renderPage(name, data)
	if err != nil {
		logger.Log.Errorw("page rendering failed", "page", name, zap.Error(err))
		http.Error(response, MessageUnexpected, http.StatusInternalServerError)
		return
	}
	router.pages.Set(ctx, user.ID, key, body)

	writeHTML(response, http.StatusOK, body)
}

type jsonError struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(response http.ResponseWriter, status int, body any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(body); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
	}
}

func writeJSONError(response http.ResponseWriter, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		if apperr.IsExternal(err) {
			status = http.StatusBadGateway
		}
		logger.Log.Errorw("api request failed", zap.Error(err))
	}

	writeJSON(response, status, jsonError{Error: message, Fields: fieldsOf(err)})
}

// decodeParams fills params from a JSON body or from urlencoded form values.
// Form keys are the json names of params.
func decodeParams(request *http.Request, params any) error {
	if strings.HasPrefix(request.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(request.Body).Decode(params)
	}

	if err := request.ParseForm(); err != nil {
		return err
	}
	values := make(map[string]string, len(request.PostForm))
	for key := range request.PostForm {
		values[key] = strings.TrimSpace(request.PostForm.Get(key))
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, params)
}

// echoForm returns the submitted form without secrets, for re-rendering.
func echoForm(request *http.Request) map[string]string {
	form := map[string]string{}
	for key := range request.PostForm {
		switch key {
		case "password", "ssn":
			continue
		}
		form[key] = request.PostForm.Get(key)
	}
	return form
}
