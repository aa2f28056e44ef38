package http_api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
)

const maxWebhookBody = 64 << 10

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type PayGatewayRequest struct {
	BankCode string `json:"bank_code"`
}

// IntentResponse is the flattened checkout returned when an intent is opened.
type IntentResponse struct {
	IntentID        string              `json:"intent_id"`
	OrderCode       string              `json:"order_code"`
	QRCodeURL       string              `json:"qr_code_url"`
	TransferContent string              `json:"transfer_content"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        models.Currency     `json:"currency"`
	Status          models.IntentStatus `json:"status"`
	ExpiresAt       time.Time           `json:"expires_at"`
	BankCode        string              `json:"bank_code,omitempty"`
	AccountNumber   string              `json:"account_number,omitempty"`
	AccountName     string              `json:"account_name,omitempty"`
	AttemptID       string              `json:"attempt_id,omitempty"`
}

func intentResponse(checkout *models.Checkout) *IntentResponse {
	in := checkout.Intent
	resp := &IntentResponse{
		IntentID:        in.ID,
		OrderCode:       in.OrderCode,
		QRCodeURL:       in.QRCodeURL,
		TransferContent: in.OrderCode,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Status:          in.Status,
		ExpiresAt:       in.ExpiresAt,
	}
	if a := checkout.Attempt; a != nil {
		resp.QRCodeURL = a.QRImageURL
		resp.TransferContent = a.TransferContent
		resp.BankCode = a.BankCode
		resp.AccountNumber = a.AccountNumber
		resp.AccountName = a.AccountName
		resp.AttemptID = a.ID
	}
	return resp
}

func (s *HTTPServer) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, xerrors.InvalidInput("invalid request body: %v", err))
		return false
	}
	return true
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func (s *HTTPServer) login(c *gin.Context) {
	var req LoginRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tokens, err := s.paygate.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *HTTPServer) refresh(c *gin.Context) {
	var req RefreshRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tokens, err := s.paygate.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *HTTPServer) createIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	checkout, err := s.paygate.CreateIntent(c.Request.Context(), userID(c), &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, intentResponse(checkout))
}

func (s *HTTPServer) getIntent(c *gin.Context) {
	in, err := s.paygate.GetIntent(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

func (s *HTTPServer) intentQR(c *gin.Context) {
	image, contentType, err := s.paygate.RenderIntentQR(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, image)
}

// callback receives gateway transfer notifications. Once the event is recorded the
// gateway always gets a success acknowledgement; processing failures are retried from the inbox.
func (s *HTTPServer) callback(c *gin.Context) {
	payload, err := webhookPayload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ack, err := s.paygate.HandleWebhook(c.Request.Context(), payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	if ack.Status == models.AckFailed {
		s.logger.Warn("Webhook recorded but not processed", "gateway_tx_id", ack.GatewayTxID, "error", ack.Error)
	}
	c.JSON(http.StatusOK, callbackResponse(ack))
}

// CallbackResponse is the flattened outcome of a gateway notification. Event keeps
// the inbox acknowledgement.
type CallbackResponse struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	IntentID      string              `json:"intent_id,omitempty"`
	OrderCode     string              `json:"order_code,omitempty"`
	Status        models.IntentStatus `json:"status,omitempty"`
	WalletBalance *decimal.Decimal    `json:"wallet_balance,omitempty"`
	Remaining     *decimal.Decimal    `json:"remaining,omitempty"`
	OrderID       string              `json:"order_id,omitempty"`
	Event         *models.WebhookAck  `json:"event"`
}

var outcomeMessages = map[models.ReconcileOutcome]string{
	models.OutcomeMatched:          "Payment confirmed",
	models.OutcomePartial:          "Partial payment received",
	models.OutcomeNoMatch:          "No matching payment intent",
	models.OutcomeAmountMismatch:   "Amount does not match the payment intent",
	models.OutcomeExpired:          "Payment intent has expired",
	models.OutcomeIgnored:          "Outgoing transfer ignored",
	models.OutcomeAlreadySucceeded: "Payment intent already succeeded",
}

func callbackResponse(ack *models.WebhookAck) *CallbackResponse {
	resp := &CallbackResponse{Success: true, Message: "Transaction recorded", Event: ack}
	switch ack.Status {
	case models.AckAlreadyProcessed:
		resp.Message = "Transaction already processed"
	case models.AckFailed:
		resp.Message = "Transaction recorded, processing will be retried"
	}
	r := ack.Result
	if r == nil {
		return resp
	}
	if ack.Status == models.AckProcessed {
		if msg, ok := outcomeMessages[r.Outcome]; ok {
			resp.Message = msg
		}
	}
	resp.IntentID = r.IntentID
	resp.OrderCode = r.OrderCode
	resp.Status = r.IntentStatus
	resp.WalletBalance = r.WalletBalance
	resp.Remaining = r.Remaining
	resp.OrderID = r.OrderID
	return resp
}

// webhookPayload reads the notification from a JSON body, a form body or the query string.
func webhookPayload(c *gin.Context) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	contentType := c.ContentType()

	switch {
	case c.Request.Method == http.MethodPost && strings.Contains(contentType, "json"):
		dec := json.NewDecoder(io.LimitReader(c.Request.Body, maxWebhookBody))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, xerrors.Wrap(xerrors.KindMalformedEvent, err, "webhook body is not a JSON object")
		}
	case c.Request.Method == http.MethodPost && contentType != "":
		if err := c.Request.ParseForm(); err != nil {
			return nil, xerrors.Wrap(xerrors.KindMalformedEvent, err, "invalid webhook form")
		}
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				payload[k] = v[0]
			}
		}
	}
	for k, v := range c.Request.URL.Query() {
		if _, ok := payload[k]; !ok && len(v) > 0 {
			payload[k] = v[0]
		}
	}
	if len(payload) == 0 {
		return nil, xerrors.New(xerrors.KindMalformedEvent, "empty webhook payload")
	}
	return payload, nil
}

func (s *HTTPServer) wallet(c *gin.Context) {
	summary, err := s.paygate.WalletSummary(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *HTTPServer) createTopup(c *gin.Context) {
	var req models.CreateTopupRequest
	if !s.bindJSON(c, &req) {
		return
	}
	checkout, err := s.paygate.CreateTopup(c.Request.Context(), userID(c), &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, intentResponse(checkout))
}

func (s *HTTPServer) topupStatus(c *gin.Context) {
	status, err := s.paygate.TopupStatus(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *HTTPServer) createOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if !s.bindJSON(c, &req) {
		return
	}
	out, err := s.paygate.CreateOrder(c.Request.Context(), userID(c), &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	order, err := s.paygate.GetOrder(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *HTTPServer) payOrderWithWallet(c *gin.Context) {
	settlement, err := s.paygate.PayOrderWithWallet(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func (s *HTTPServer) payOrderWithGateway(c *gin.Context) {
	var req PayGatewayRequest
	if c.Request.ContentLength > 0 && !s.bindJSON(c, &req) {
		return
	}
	out, err := s.paygate.PayOrderWithGateway(c.Request.Context(), userID(c), c.Param("id"), req.BankCode)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := gin.H{"order": out.Order}
	if out.Checkout != nil {
		resp["checkout"] = intentResponse(out.Checkout)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) orderHistory(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		s.fail(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	history, err := s.paygate.OrderHistory(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, xerrors.InvalidInput("%s must be an integer", name)
	}
	return n, nil
}

func (s *HTTPServer) checkAccess(c *gin.Context) {
	symbolID, err := strconv.ParseInt(c.Param("symbol_id"), 10, 64)
	if err != nil {
		s.fail(c, xerrors.InvalidInput("symbol_id must be an integer"))
		return
	}
	check, err := s.paygate.CheckAccess(c.Request.Context(), userID(c), symbolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *HTTPServer) licenses(c *gin.Context) {
	licenses, err := s.paygate.ListLicenses(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

func (s *HTTPServer) subscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if !s.bindJSON(c, &req) {
		return
	}
	sub, err := s.paygate.Subscribe(c.Request.Context(), userID(c), &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *HTTPServer) unsubscribe(c *gin.Context) {
	sub, err := s.paygate.Unsubscribe(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	subs, err := s.paygate.ListSubscriptions(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
