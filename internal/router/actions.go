package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/auth"
	"github.com/patric-chuzhbe/jjbank/internal/linker"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/plaid"
	"github.com/patric-chuzhbe/jjbank/internal/transfer"
	"github.com/patric-chuzhbe/jjbank/internal/userdir"
)

const maxWebhookBodySize = 1 << 20

// PostSignin opens a session and redirects home.
func (router *Router) PostSignin(response http.ResponseWriter, request *http.Request) {
	var params userdir.SignInParams
	if err := decodeParams(request, &params); err != nil {
		logger.Log.Debugln("Error calling the `decodeParams()`: ", zap.Error(err))
		response.WriteHeader(http.StatusBadRequest)
		return
	}

	_, err := router.users.SignIn(request.Context(), response, params)
	if err != nil {
		data := pageData{Title: "Sign In", Form: echoForm(request)}
		if errors.Is(err, userdir.ErrUserNotFound) || apperr.StatusCode(err) == http.StatusUnauthorized {
			data.Message = MessageBadCredentials
			router.render(response, http.StatusUnauthorized, "sign-in", data)
			return
		}
		router.renderError(response, "sign-in", data, err)
		return
	}

	http.Redirect(response, request, "/", http.StatusSeeOther)
}

// PostSignup registers the user and redirects home. When only the final
// session could not be opened the user exists and is sent to sign in.
func (router *Router) PostSignup(response http.ResponseWriter, request *http.Request) {
	var params userdir.SignUpParams
	if err := decodeParams(request, &params); err != nil {
		logger.Log.Debugln("Error calling the `decodeParams()`: ", zap.Error(err))
		response.WriteHeader(http.StatusBadRequest)
		return
	}

	_, err := router.users.SignUp(request.Context(), response, params)
	switch {
	case err == nil:
		http.Redirect(response, request, "/", http.StatusSeeOther)
	case errors.Is(err, userdir.ErrSessionAfterSignUp):
		http.Redirect(response, request, "/sign-in", http.StatusSeeOther)
	case apperr.StatusCode(err) == http.StatusConflict:
		router.render(response, http.StatusConflict, "sign-up", pageData{
			Title:   "Sign Up",
			Message: MessageUserExists,
			Form:    echoForm(request),
		})
	default:
		router.renderError(response, "sign-up", pageData{Title: "Sign Up", Form: echoForm(request)}, err)
	}
}

// PostLogout ends the session. The cookie is gone even if the provider
// call fails, so the caller always lands on the sign-in page.
func (router *Router) PostLogout(response http.ResponseWriter, request *http.Request) {
	if err := router.users.Logout(request.Context(), response, request); err != nil {
		logger.Log.Errorw("logout failed", zap.Error(err))
	}

	http.Redirect(response, request, "/sign-in", http.StatusSeeOther)
}

// PostPaymenttransfer sends money and redirects home. Failures re-render the
// form with the reason.
func (router *Router) PostPaymenttransfer(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		router.renderError(response, "payment-transfer", pageData{Title: "Payment Transfer"}, apperr.ErrNoSession)
		return
	}

	var params transfer.SendParams
	if err := decodeParams(request, &params); err != nil {
		logger.Log.Debugln("Error calling the `decodeParams()`: ", zap.Error(err))
		response.WriteHeader(http.StatusBadRequest)
		return
	}

	if _, err := router.transfers.Send(request.Context(), user, params); err != nil {
		data, pageErr := router.transferPage(request, user)
		if pageErr != nil {
			logger.Log.Debugln("Error calling the `router.transferPage()`: ", zap.Error(pageErr))
		}
		data.Form = echoForm(request)
		router.renderError(response, "payment-transfer", data, err)
		return
	}

	http.Redirect(response, request, "/", http.StatusSeeOther)
}

// PostApilinktoken returns a link token for the bank-link widget.
func (router *Router) PostApilinktoken(response http.ResponseWriter, request *http.Request) {
	token, err := router.users.CreateLinkToken(request.Context(), auth.UserFrom(request.Context()))
	if err != nil {
		writeJSONError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, map[string]string{"linkToken": token})
}

// PostApiexchangepublictoken links the bank chosen in the widget.
func (router *Router) PostApiexchangepublictoken(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		writeJSONError(response, apperr.ErrNoSession)
		return
	}

	var params linker.ExchangeParams
	if err := json.NewDecoder(request.Body).Decode(&params); err != nil {
		logger.Log.Debugln("Error calling the `json.NewDecoder(request.Body).Decode()`: ", zap.Error(err))
		writeJSON(response, http.StatusBadRequest, jsonError{Error: "malformed JSON body"})
		return
	}

	bank, err := router.linker.ExchangePublicToken(request.Context(), params, user)
	if err != nil {
		writeJSONError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, map[string]string{
		"publicTokenExchange": "complete",
		"bankId":              bank.ID,
	})
}

// PostWebhooksplaid accepts signed item notifications and drops the cached
// pages of the bank's owner. Unknown items are acknowledged and ignored.
func (router *Router) PostWebhooksplaid(response http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	body, err := io.ReadAll(io.LimitReader(request.Body, maxWebhookBodySize))
	if err != nil {
		logger.Log.Debugln("Error calling the `io.ReadAll()`: ", zap.Error(err))
		response.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := router.webhooks.Verify(ctx, request.Header.Get(plaid.VerificationHeader), body); err != nil {
		logger.Log.Debugln("Error calling the `router.webhooks.Verify()`: ", zap.Error(err))
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	var hook plaid.Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		logger.Log.Debugln("Error calling the `json.Unmarshal()`: ", zap.Error(err))
		response.WriteHeader(http.StatusBadRequest)
		return
	}

	if hook.ItemID != "" {
		bank, err := router.accounts.GetBankByItemID(ctx, hook.ItemID)
		if err != nil {
			logger.Log.Errorw("webhook item lookup failed", "item", hook.ItemID, zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
		if bank != nil {
			router.pages.Revalidate(ctx, bank.UserID)
		}
	}
	logger.Log.Infow("plaid webhook", "type", hook.WebhookType, "code", hook.WebhookCode, "item", hook.ItemID)

	response.WriteHeader(http.StatusOK)
}
