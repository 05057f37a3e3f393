package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFormHarness(t *testing.T) (*Service, *InMemory, *fakeClock, chi.Router) {
	t.Helper()
	service, store, clock := newTestService(t)
	return service, store, clock, FormRouter(service)
}

func getPage(router chi.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html,*/*")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func postForm(router chi.Router, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func cardValues(number string) url.Values {
	return url.Values{
		"card_number": {number},
		"expiry":      {"12/30"},
		"cvv":         {"123"},
		"holder":      {"CARD HOLDER"},
	}
}

func TestFormShowsCardEntry(t *testing.T) {
	service, store, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-1")

	rr := getPage(router, "/"+result.PaymentID)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("content-type"), "text/html")
	assert.Contains(t, rr.Body.String(), `name="card_number"`)
	assert.Contains(t, rr.Body.String(), "10 RUB")

	// Rendering the form is the FORM_SHOWED transition.
	payment, err := store.GetPayment(context.Background(), result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusFormShowed, payment.Status)
}

func TestFormSubmitRedirectsToResult(t *testing.T) {
	service, _, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-2")

	rr := postForm(router, "/"+result.PaymentID, cardValues(SimCardOK))
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Equal(t, "http://localhost:3333/form/"+result.PaymentID+"/result", rr.Header().Get("Location"))

	rr = getPage(router, "/"+result.PaymentID+"/result")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "completed")
	assert.Contains(t, rr.Body.String(), "CONFIRMED")
}

func TestFormChallengeRoundTrip(t *testing.T) {
	service, store, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-3ds")

	rr := postForm(router, "/"+result.PaymentID, cardValues(SimCardChallenge))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "http://localhost:3333/form/"+result.PaymentID+"/3ds", rr.Header().Get("Location"))

	rr = getPage(router, "/"+result.PaymentID+"/3ds")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="otp"`)

	rr = postForm(router, "/"+result.PaymentID+"/3ds", url.Values{"otp": {SimulatedOTP}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "http://localhost:3333/form/"+result.PaymentID+"/result", rr.Header().Get("Location"))

	payment, err := store.GetPayment(context.Background(), result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, payment.Status)
}

func TestFormWrongChallengeAnswerRedirectsToFail(t *testing.T) {
	service, _, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-3ds-bad", func(req *InitRequest) {
		req.Intent.FailURL = "https://shop.example/fail"
	})

	rr := postForm(router, "/"+result.PaymentID, cardValues(SimCardChallenge))
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = postForm(router, "/"+result.PaymentID+"/3ds", url.Values{"otp": {"000000"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "https://shop.example/fail", rr.Header().Get("Location"))
}

func TestFormInvalidCardReRendersWithMessage(t *testing.T) {
	service, store, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-bad-card")

	rr := postForm(router, "/"+result.PaymentID, cardValues("4111111111111112"))
	require.Equal(t, http.StatusOK, rr.Code, "the card form is re-rendered for another try")
	assert.Contains(t, rr.Body.String(), `role="alert"`)
	assert.Contains(t, rr.Body.String(), "checksum")
	assert.Contains(t, rr.Body.String(), `name="card_number"`)

	payment, err := store.GetPayment(context.Background(), result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, payment.Status, "rejected input costs nothing")
}

func TestFormDeclinedCardRedirectsToFailURL(t *testing.T) {
	service, _, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-declined", func(req *InitRequest) {
		req.Intent.FailURL = "https://shop.example/fail"
	})

	rr := postForm(router, "/"+result.PaymentID, cardValues(SimCardDeclined))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "https://shop.example/fail", rr.Header().Get("Location"))
}

func TestFormExpiredPayment(t *testing.T) {
	service, _, clock, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-expired")

	clock.now = clock.now.Add(DefaultIntentTTL + time.Minute)
	rr := getPage(router, "/"+result.PaymentID)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "expired")
}

func TestFormResultPageForPendingPayment(t *testing.T) {
	service, _, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-pending")

	rr := getPage(router, "/"+result.PaymentID+"/result")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pending")
}

func TestFormUnknownAndMalformedIDs(t *testing.T) {
	_, _, _, router := newFormHarness(t)

	rr := getPage(router, "/00000000000000000000")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = getPage(router, "/not-a-payment-id")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFormSubmitOnSettledPaymentRedirectsToResult(t *testing.T) {
	service, _, _, router := newFormHarness(t)
	result := initPayment(t, service, "form-order-settled")

	rr := postForm(router, "/"+result.PaymentID, cardValues(SimCardOK))
	require.Equal(t, http.StatusSeeOther, rr.Code)

	// A stale tab resubmitting lands on the result page, not an error.
	rr = postForm(router, "/"+result.PaymentID, cardValues(SimCardOK))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "http://localhost:3333/form/"+result.PaymentID+"/result", rr.Header().Get("Location"))
}
