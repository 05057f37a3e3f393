package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"

	"github.com/brave-intl/acquiring-go/libs/handlers"
	"github.com/brave-intl/acquiring-go/libs/middleware"
	"github.com/brave-intl/acquiring-go/libs/requestutils"

	// register the payment validator tags with govalidator
	_ "github.com/brave-intl/acquiring-go/libs/validators"
)

// Router for merchant payment endpoints. Every operation is a signed POST,
// the token travels in the body with the parameters it covers.
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/init", middleware.InstrumentHandler("InitPayment", InitPayment(service)))
	r.Method("POST", "/confirm", middleware.InstrumentHandler("ConfirmPayment", ConfirmPayment(service)))
	r.Method("POST", "/cancel", middleware.InstrumentHandler("CancelPayment", CancelPayment(service)))
	r.Method("POST", "/check-order", middleware.InstrumentHandler("CheckOrder", CheckOrder(service)))
	r.Method("POST", "/state", middleware.InstrumentHandler("GetPaymentState", GetPaymentState(service)))
	return r
}

// decodeEnvelope reads the body once, keeping both the raw bytes for typed
// decoding and the parameter map the signature covers. Numbers keep the
// exact textual form the caller sent.
func decodeEnvelope(ctx context.Context, body io.Reader) ([]byte, Envelope, error) {
	raw, err := requestutils.Read(ctx, body)
	if err != nil {
		return nil, Envelope{}, err
	}

	params := map[string]interface{}{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&params); err != nil {
		return nil, Envelope{}, err
	}

	env := Envelope{Params: params}
	if token, ok := params["Token"].(string); ok {
		env.Token = token
	}
	delete(params, "Token")
	if key, ok := params["MerchantKey"].(string); ok {
		env.MerchantKey = key
	}
	return raw, env, nil
}

// initBody is the signed wire shape of an Init call. Field names follow the
// protocol casing, amounts travel as their canonical integer string.
type initBody struct {
	MerchantKey     string                   `json:"MerchantKey" valid:"required"`
	Token           string                   `json:"Token" valid:"required"`
	Amount          string                   `json:"Amount" valid:"required,int"`
	Currency        string                   `json:"Currency" valid:"required,currency"`
	OrderID         string                   `json:"OrderId" valid:"required,orderid"`
	Description     string                   `json:"Description" valid:"-"`
	CustomerKey     string                   `json:"CustomerKey" valid:"-"`
	PayType         string                   `json:"PayType" valid:"in(single-stage|two-stage),optional"`
	Language        string                   `json:"Language" valid:"language,optional"`
	SuccessURL      string                   `json:"SuccessUrl" valid:"url,optional"`
	FailURL         string                   `json:"FailUrl" valid:"url,optional"`
	NotificationURL string                   `json:"NotificationUrl" valid:"url,optional"`
	ExpiresAt       string                   `json:"ExpiresAt" valid:"rfc3339,optional"`
	Recurrent       bool                     `json:"Recurrent" valid:"-"`
	Receipt         map[string]interface{}   `json:"Receipt" valid:"-"`
	Items           []map[string]interface{} `json:"Items" valid:"-"`
	Shops           []map[string]interface{} `json:"Shops" valid:"-"`
	Data            map[string]string        `json:"Data" valid:"-"`
}

// InitPayment is the handler for creating a payment from a signed intent
func InitPayment(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		raw, env, err := decodeEnvelope(r.Context(), r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		var body initBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(body); err != nil {
			return handlers.WrapValidationError(err)
		}

		amount, err := strconv.ParseInt(body.Amount, 10, 64)
		if err != nil {
			return handlers.ValidationError("request body", map[string]string{
				"Amount": "amount must be an integer amount of minor units",
			})
		}

		req := InitRequest{
			Envelope: env,
			Intent: PaymentIntent{
				OrderID:         body.OrderID,
				Amount:          amount,
				Currency:        body.Currency,
				Description:     body.Description,
				CustomerKey:     body.CustomerKey,
				PayType:         PayType(body.PayType),
				Language:        body.Language,
				SuccessURL:      body.SuccessURL,
				FailURL:         body.FailURL,
				NotificationURL: body.NotificationURL,
				Recurrent:       body.Recurrent,
				Receipt:         body.Receipt,
				Data:            body.Data,
			},
		}
		for _, item := range body.Items {
			req.Intent.Items = append(req.Intent.Items, item)
		}
		for _, shop := range body.Shops {
			req.Intent.Shops = append(req.Intent.Shops, shop)
		}
		if body.ExpiresAt != "" {
			expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
			if err != nil {
				return handlers.ValidationError("request body", map[string]string{
					"ExpiresAt": "deadline must be RFC 3339",
				})
			}
			req.ExpiresAt = expiresAt
		}

		result, err := service.Init(r.Context(), &req)
		if err != nil {
			return appError(err)
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusCreated)
	})
}

// confirmBody is the signed wire shape of a Confirm call.
type confirmBody struct {
	MerchantKey string `json:"MerchantKey" valid:"required"`
	Token       string `json:"Token" valid:"required"`
	PaymentID   string `json:"PaymentId" valid:"required,paymentid"`
}

// ConfirmPayment is the handler for capturing an authorized two-stage payment
func ConfirmPayment(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		raw, env, err := decodeEnvelope(r.Context(), r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		var body confirmBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(body); err != nil {
			return handlers.WrapValidationError(err)
		}

		result, err := service.Confirm(r.Context(), &ConfirmRequest{Envelope: env, PaymentID: body.PaymentID})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return handlers.WrapError(err, "payment not found", http.StatusNotFound)
			}
			return appError(err)
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusOK)
	})
}

// cancelBody is the signed wire shape of a Cancel call. Amount is optional
// and travels as its canonical integer string like Init amounts do.
type cancelBody struct {
	MerchantKey string `json:"MerchantKey" valid:"required"`
	Token       string `json:"Token" valid:"required"`
	PaymentID   string `json:"PaymentId" valid:"required,paymentid"`
	Amount      string `json:"Amount" valid:"int,optional"`
}

// CancelPayment is the handler for withdrawing, reversing or refunding a payment
func CancelPayment(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		raw, env, err := decodeEnvelope(r.Context(), r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		var body cancelBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(body); err != nil {
			return handlers.WrapValidationError(err)
		}

		req := CancelRequest{Envelope: env, PaymentID: body.PaymentID}
		if body.Amount != "" {
			amount, err := strconv.ParseInt(body.Amount, 10, 64)
			if err != nil {
				return handlers.ValidationError("request body", map[string]string{
					"Amount": "amount must be an integer amount of minor units",
				})
			}
			req.Amount = &amount
		}

		result, err := service.Cancel(r.Context(), &req)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return handlers.WrapError(err, "payment not found", http.StatusNotFound)
			}
			return appError(err)
		}
		return handlers.RenderContent(r.Context(), result, w, http.StatusOK)
	})
}

// checkOrderBody is the signed wire shape of a CheckOrder call.
type checkOrderBody struct {
	MerchantKey string `json:"MerchantKey" valid:"required"`
	Token       string `json:"Token" valid:"required"`
	OrderID     string `json:"OrderId" valid:"required,orderid"`
}

// CheckOrderResponse lists every payment bound to the order.
type CheckOrderResponse struct {
	OrderID  string           `json:"orderId"`
	Payments []PaymentSummary `json:"payments"`
}

// CheckOrder is the handler for listing the payments behind one order id
func CheckOrder(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		raw, env, err := decodeEnvelope(r.Context(), r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		var body checkOrderBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(body); err != nil {
			return handlers.WrapValidationError(err)
		}

		summaries, err := service.CheckOrder(r.Context(), &CheckOrderRequest{Envelope: env, OrderID: body.OrderID})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return handlers.WrapError(err, "order not found", http.StatusNotFound)
			}
			return appError(err)
		}
		return handlers.RenderContent(r.Context(), &CheckOrderResponse{OrderID: body.OrderID, Payments: summaries}, w, http.StatusOK)
	})
}

// getStateBody is the signed wire shape of a Get call.
type getStateBody struct {
	MerchantKey string `json:"MerchantKey" valid:"required"`
	Token       string `json:"Token" valid:"required"`
	PaymentID   string `json:"PaymentId" valid:"required,paymentid"`
}

// GetPaymentState is the handler for reading one payment with its history
func GetPaymentState(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		raw, env, err := decodeEnvelope(r.Context(), r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		var body getStateBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}
		if _, err := govalidator.ValidateStruct(body); err != nil {
			return handlers.WrapValidationError(err)
		}

		view, err := service.Get(r.Context(), &GetRequest{Envelope: env, PaymentID: body.PaymentID})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return handlers.WrapError(err, "payment not found", http.StatusNotFound)
			}
			return appError(err)
		}
		return handlers.RenderContent(r.Context(), view, w, http.StatusOK)
	})
}
