package payments

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"

	"github.com/brave-intl/acquiring-go/libs/handlers"
	"github.com/brave-intl/acquiring-go/libs/middleware"
	"github.com/brave-intl/acquiring-go/libs/validators"
)

// FormRenderer produces the hosted payment pages and accepts their
// submissions. The hosted form is the only path through which raw card
// data enters the gateway.
type FormRenderer interface {
	Render(ctx context.Context, paymentID string) (string, error)
	Submit(ctx context.Context, paymentID string, values url.Values) (*AcceptResult, error)
}

// HostedForm is the built-in FormRenderer serving server-rendered pages.
type HostedForm struct {
	service *Service
}

// NewHostedForm creates the built-in renderer over the service.
func NewHostedForm(service *Service) *HostedForm {
	return &HostedForm{service: service}
}

// Render returns the page matching where the payment stands: card entry
// while the payment accepts card data, the challenge page while an answer
// is awaited, the result page for everything else.
func (f *HostedForm) Render(ctx context.Context, paymentID string) (string, error) {
	payment, err := f.service.ShowForm(ctx, paymentID)
	if err != nil {
		if IsCode(err, ErrCodeExpired) {
			return renderPage(expiredTemplate, nil)
		}
		return "", err
	}

	switch {
	case challengeStatuses[payment.Status]:
		return renderPage(challengeTemplate, newFormPage(payment, ""))
	case acceptableStatuses[payment.Status]:
		return renderPage(cardFormTemplate, newFormPage(payment, ""))
	default:
		return renderPage(resultTemplate, newFormPage(payment, ""))
	}
}

// Submit feeds posted card data into the payment lifecycle.
func (f *HostedForm) Submit(ctx context.Context, paymentID string, values url.Values) (*AcceptResult, error) {
	card := Card{
		Number: values.Get("card_number"),
		Expiry: values.Get("expiry"),
		CVV:    values.Get("cvv"),
		Holder: values.Get("holder"),
	}
	return f.service.AcceptCard(ctx, &AcceptCardRequest{PaymentID: paymentID, Card: card})
}

// SubmitChallenge feeds a posted challenge answer into the lifecycle.
func (f *HostedForm) SubmitChallenge(ctx context.Context, paymentID string, values url.Values) (*AcceptResult, error) {
	return f.service.Submit3DS(ctx, &Submit3DSRequest{PaymentID: paymentID, OTP: values.Get("otp")})
}

func corsMiddleware(allowedMethods []string) func(next http.Handler) http.Handler {
	debug, err := strconv.ParseBool(os.Getenv("DEBUG"))
	if err != nil {
		debug = false
	}
	return cors.Handler(cors.Options{
		Debug:            debug,
		AllowedOrigins:   strings.Split(os.Getenv("ALLOWED_ORIGINS"), ","),
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{""},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})
}

// FormRouter serves the hosted payment form.
func FormRouter(service *Service) chi.Router {
	form := NewHostedForm(service)

	r := chi.NewRouter()
	r.Use(corsMiddleware([]string{"GET", "POST"}))
	r.Method("GET", "/{paymentID}", middleware.InstrumentHandler("ShowPaymentForm", ShowPaymentForm(form)))
	r.Method("POST", "/{paymentID}", middleware.InstrumentHandler("SubmitPaymentForm", SubmitPaymentForm(form, service)))
	r.Method("GET", "/{paymentID}/3ds", middleware.InstrumentHandler("ShowChallengeForm", ShowPaymentForm(form)))
	r.Method("POST", "/{paymentID}/3ds", middleware.InstrumentHandler("SubmitChallengeForm", SubmitChallengeForm(form, service)))
	r.Method("GET", "/{paymentID}/result", middleware.InstrumentHandler("ShowPaymentResult", ShowPaymentResult(service)))
	return r
}

// ShowPaymentForm is the handler rendering the page for the payment's state
func ShowPaymentForm(form *HostedForm) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		paymentID := chi.URLParam(r, "paymentID")
		if !validators.IsPaymentID(paymentID) {
			return handlers.ValidationError("request url parameter", map[string]string{
				"paymentID": "paymentID must be a 20 character payment id",
			})
		}

		page, err := form.Render(r.Context(), paymentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return handlers.WrapError(err, "payment not found", http.StatusNotFound)
			}
			return appError(err)
		}
		return writePage(w, page)
	})
}

// SubmitPaymentForm is the handler accepting card data from the hosted form
func SubmitPaymentForm(form *HostedForm, service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		paymentID := chi.URLParam(r, "paymentID")
		if !validators.IsPaymentID(paymentID) {
			return handlers.ValidationError("request url parameter", map[string]string{
				"paymentID": "paymentID must be a 20 character payment id",
			})
		}
		if err := r.ParseForm(); err != nil {
			return handlers.WrapError(err, "Error in form body", http.StatusBadRequest)
		}

		result, err := form.Submit(r.Context(), paymentID, r.PostForm)
		if err != nil {
			return renderSubmitFailure(service, w, r, paymentID, err)
		}

		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
		return nil
	})
}

// SubmitChallengeForm is the handler accepting the challenge answer
func SubmitChallengeForm(form *HostedForm, service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		paymentID := chi.URLParam(r, "paymentID")
		if !validators.IsPaymentID(paymentID) {
			return handlers.ValidationError("request url parameter", map[string]string{
				"paymentID": "paymentID must be a 20 character payment id",
			})
		}
		if err := r.ParseForm(); err != nil {
			return handlers.WrapError(err, "Error in form body", http.StatusBadRequest)
		}

		result, err := form.SubmitChallenge(r.Context(), paymentID, r.PostForm)
		if err != nil {
			return renderSubmitFailure(service, w, r, paymentID, err)
		}

		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
		return nil
	})
}

// ShowPaymentResult is the handler rendering the read-only outcome page
func ShowPaymentResult(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		paymentID := chi.URLParam(r, "paymentID")
		if !validators.IsPaymentID(paymentID) {
			return handlers.ValidationError("request url parameter", map[string]string{
				"paymentID": "paymentID must be a 20 character payment id",
			})
		}

		payment, err := service.Datastore.GetPayment(r.Context(), paymentID)
		if err != nil {
			return appError(err)
		}
		if payment == nil {
			return handlers.WrapError(ErrNotFound, "payment not found", http.StatusNotFound)
		}

		page, err := renderPage(resultTemplate, newFormPage(payment, ""))
		if err != nil {
			return appError(err)
		}
		return writePage(w, page)
	})
}

// renderSubmitFailure turns a lifecycle failure into the page or redirect a
// cardholder should see.
func renderSubmitFailure(service *Service, w http.ResponseWriter, r *http.Request, paymentID string, err error) *handlers.AppError {
	if errors.Is(err, ErrNotFound) {
		return handlers.WrapError(err, "payment not found", http.StatusNotFound)
	}

	switch CodeOf(err) {
	case ErrCodeExpired:
		page, renderErr := renderPage(expiredTemplate, nil)
		if renderErr != nil {
			return appError(renderErr)
		}
		return writePage(w, page)

	case ErrCodeInvalidCard, ErrCodeBankUnavailable:
		// Both leave the cardholder a path forward: fix the card data, or
		// try again once the bank answers.
		payment, getErr := service.Datastore.GetPayment(r.Context(), paymentID)
		if getErr != nil || payment == nil {
			return appError(err)
		}
		tmpl := cardFormTemplate
		if challengeStatuses[payment.Status] {
			tmpl = challengeTemplate
		}
		page, renderErr := renderPage(tmpl, newFormPage(payment, userMessage(err)))
		if renderErr != nil {
			return appError(renderErr)
		}
		return writePage(w, page)

	case ErrCodeBankRejected:
		payment, getErr := service.Datastore.GetPayment(r.Context(), paymentID)
		if getErr != nil || payment == nil {
			return appError(err)
		}
		http.Redirect(w, r, service.failRedirect(payment), http.StatusSeeOther)
		return nil

	case ErrCodeInvalidState, ErrCodeInvalidTransition, ErrCodeConcurrentModification:
		http.Redirect(w, r, service.resultURL(paymentID), http.StatusSeeOther)
		return nil
	}
	return appError(err)
}

// userMessage is the human line shown on a re-rendered form.
func userMessage(err error) string {
	var gatewayError *Error
	if errors.As(err, &gatewayError) {
		return gatewayError.Message
	}
	return "something went wrong, try again"
}

func writePage(w http.ResponseWriter, page string) *handlers.AppError {
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(page)); err != nil {
		panic(err)
	}
	return nil
}

func renderPage(t *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// formPage is the view model shared by the hosted pages.
type formPage struct {
	PaymentID    string
	OrderID      string
	Amount       string
	Currency     string
	Description  string
	Language     string
	Error        string
	Status       string
	StatusFamily string
	ContinueURL  string
}

func newFormPage(payment *Payment, errMsg string) formPage {
	page := formPage{
		PaymentID:    payment.PaymentID,
		OrderID:      payment.OrderID,
		Amount:       MajorUnits(payment.Amount, payment.Currency).String(),
		Currency:     payment.Currency,
		Description:  payment.Intent.Description,
		Language:     payment.Intent.Language,
		Error:        errMsg,
		Status:       string(payment.Status),
		StatusFamily: payment.Status.ViewStatus(),
	}
	switch page.StatusFamily {
	case "completed":
		page.ContinueURL = payment.Intent.SuccessURL
	case "failed", "cancelled", "refunded":
		page.ContinueURL = payment.Intent.FailURL
	}
	return page
}

var (
	cardFormTemplate  = template.Must(template.New("card").Parse(cardFormHTML))
	challengeTemplate = template.Must(template.New("challenge").Parse(challengeHTML))
	resultTemplate    = template.Must(template.New("result").Parse(resultHTML))
	expiredTemplate   = template.Must(template.New("expired").Parse(expiredHTML))
)

const cardFormHTML = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head><meta charset="utf-8"><title>Order {{.OrderID}}</title></head>
<body>
<h1>Pay {{.Amount}} {{.Currency}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post">
<label>Card number <input name="card_number" inputmode="numeric" autocomplete="cc-number" required></label>
<label>Expiry <input name="expiry" placeholder="MM/YY" autocomplete="cc-exp" required></label>
<label>CVV <input name="cvv" type="password" inputmode="numeric" autocomplete="cc-csc" required></label>
<label>Cardholder <input name="holder" autocomplete="cc-name" required></label>
<button type="submit">Pay</button>
</form>
</body>
</html>
`

const challengeHTML = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head><meta charset="utf-8"><title>Order {{.OrderID}}</title></head>
<body>
<h1>Confirm the payment of {{.Amount}} {{.Currency}}</h1>
<p>Enter the code your bank sent you.</p>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/form/{{.PaymentID}}/3ds">
<label>Code <input name="otp" inputmode="numeric" autocomplete="one-time-code" required></label>
<button type="submit">Confirm</button>
</form>
</body>
</html>
`

const resultHTML = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head><meta charset="utf-8"><title>Order {{.OrderID}}</title></head>
<body>
<h1>Payment {{.StatusFamily}}</h1>
<p>Order {{.OrderID}}, {{.Amount}} {{.Currency}}.</p>
<p>Current state: {{.Status}}.</p>
{{if .ContinueURL}}<p><a href="{{.ContinueURL}}">Return to the shop</a></p>{{end}}
</body>
</html>
`

const expiredHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Payment expired</title></head>
<body>
<h1>This payment link has expired</h1>
<p>Ask the shop to issue a new payment.</p>
</body>
</html>
`
