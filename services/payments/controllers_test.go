package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/suite"
)

type ControllersTestSuite struct {
	suite.Suite

	service *Service
	store   *InMemory
	clock   *fakeClock
	router  chi.Router
}

func TestControllersTestSuite(t *testing.T) {
	suite.Run(t, new(ControllersTestSuite))
}

func (suite *ControllersTestSuite) SetupTest() {
	suite.service, suite.store, suite.clock = newTestService(suite.T())
	suite.router = Router(suite.service)
}

// signedBody marshals the params with a token derived from them, the way a
// merchant SDK would.
func (suite *ControllersTestSuite) signedBody(params map[string]interface{}) []byte {
	body := map[string]interface{}{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = SHA256Signer{}.Sign(params, testMerchantSecret)
	raw, err := json.Marshal(body)
	suite.Require().NoError(err)
	return raw
}

func (suite *ControllersTestSuite) post(path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("content-type", "application/json")
	rr := httptest.NewRecorder()
	suite.router.ServeHTTP(rr, req)
	return rr
}

func (suite *ControllersTestSuite) initParams(orderID string) map[string]interface{} {
	return map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"Amount":      "1000",
		"Currency":    "RUB",
		"OrderId":     orderID,
	}
}

func (suite *ControllersTestSuite) decodeError(rr *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func (suite *ControllersTestSuite) TestInitPayment() {
	rr := suite.post("/init", suite.signedBody(suite.initParams("order-http-1")))
	suite.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	var result InitResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &result))
	suite.Assert().Regexp(paymentIDRE, result.PaymentID)
	suite.Assert().Equal("order-http-1", result.OrderID)
	suite.Assert().Equal(StatusNew, result.Status)
	suite.Assert().Contains(result.PaymentURL, "/form/"+result.PaymentID)
}

func (suite *ControllersTestSuite) TestInitPaymentBadToken() {
	params := suite.initParams("order-http-2")
	body := map[string]interface{}{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = "0000000000000000000000000000000000000000000000000000000000000000"
	raw, err := json.Marshal(body)
	suite.Require().NoError(err)

	rr := suite.post("/init", raw)
	suite.Require().Equal(http.StatusUnauthorized, rr.Code)

	errBody := suite.decodeError(rr)
	suite.Assert().Equal(string(ErrCodeInvalidToken), errBody["errorCode"])
	suite.Assert().NotContains(rr.Body.String(), "expected", "responses never describe the expected token")

	suite.store.mu.RLock()
	defer suite.store.mu.RUnlock()
	suite.Assert().Empty(suite.store.payments)
}

func (suite *ControllersTestSuite) TestInitPaymentValidation() {
	params := suite.initParams("order-http-3")
	delete(params, "OrderId")
	rr := suite.post("/init", suite.signedBody(params))
	suite.Require().Equal(http.StatusBadRequest, rr.Code)

	errBody := suite.decodeError(rr)
	data, ok := errBody["data"].(map[string]interface{})
	suite.Require().True(ok)
	validationErrors, ok := data["validationErrors"].(map[string]interface{})
	suite.Require().True(ok)
	suite.Assert().Contains(validationErrors, "OrderId")

	params = suite.initParams("order-http-3")
	params["Amount"] = "12.50"
	rr = suite.post("/init", suite.signedBody(params))
	suite.Require().Equal(http.StatusBadRequest, rr.Code, "fractional minor units are not an amount")

	params = suite.initParams("order-http-3")
	params["Currency"] = "rub"
	rr = suite.post("/init", suite.signedBody(params))
	suite.Require().Equal(http.StatusBadRequest, rr.Code, "currency must be an uppercase ISO code")
}

func (suite *ControllersTestSuite) TestInitPaymentDuplicateOrder() {
	rr := suite.post("/init", suite.signedBody(suite.initParams("order-http-dup")))
	suite.Require().Equal(http.StatusCreated, rr.Code)
	var first InitResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &first))

	rr = suite.post("/init", suite.signedBody(suite.initParams("order-http-dup")))
	suite.Require().Equal(http.StatusConflict, rr.Code)

	errBody := suite.decodeError(rr)
	suite.Assert().Equal(string(ErrCodeDuplicateOrder), errBody["errorCode"])
	data, ok := errBody["data"].(map[string]interface{})
	suite.Require().True(ok, "conflict responses point at the live payment")
	suite.Assert().Equal(first.PaymentID, data["paymentId"])
}

func (suite *ControllersTestSuite) TestConfirmPayment() {
	params := suite.initParams("order-http-confirm")
	params["PayType"] = "two-stage"
	rr := suite.post("/init", suite.signedBody(params))
	suite.Require().Equal(http.StatusCreated, rr.Code)
	var created InitResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &created))

	_, err := suite.service.AcceptCard(context.Background(), &AcceptCardRequest{
		PaymentID: created.PaymentID,
		Card:      testCard(SimCardOK),
	})
	suite.Require().NoError(err)

	rr = suite.post("/confirm", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   created.PaymentID,
	}))
	suite.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	var result StatusResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &result))
	suite.Assert().Equal(StatusConfirmed, result.Status)

	// A second confirm is a state conflict.
	rr = suite.post("/confirm", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   created.PaymentID,
	}))
	suite.Require().Equal(http.StatusConflict, rr.Code)
	suite.Assert().Equal(string(ErrCodeInvalidState), suite.decodeError(rr)["errorCode"])
}

func (suite *ControllersTestSuite) TestCancelPaymentPartialRefund() {
	rr := suite.post("/init", suite.signedBody(suite.initParams("order-http-cancel")))
	suite.Require().Equal(http.StatusCreated, rr.Code)
	var created InitResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &created))

	_, err := suite.service.AcceptCard(context.Background(), &AcceptCardRequest{
		PaymentID: created.PaymentID,
		Card:      testCard(SimCardOK),
	})
	suite.Require().NoError(err)

	rr = suite.post("/cancel", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   created.PaymentID,
		"Amount":      "400",
	}))
	suite.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	var result StatusResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &result))
	suite.Assert().Equal(StatusPartialRefunded, result.Status)
	suite.Require().NotNil(result.RefundedAmount)
	suite.Assert().Equal(int64(400), *result.RefundedAmount)
}

func (suite *ControllersTestSuite) TestCancelUnknownPayment() {
	rr := suite.post("/cancel", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   "00000000000000000000",
	}))
	suite.Require().Equal(http.StatusNotFound, rr.Code)
}

func (suite *ControllersTestSuite) TestCheckOrder() {
	rr := suite.post("/init", suite.signedBody(suite.initParams("order-http-check")))
	suite.Require().Equal(http.StatusCreated, rr.Code)

	rr = suite.post("/check-order", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"OrderId":     "order-http-check",
	}))
	suite.Require().Equal(http.StatusOK, rr.Code)

	var response CheckOrderResponse
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &response))
	suite.Assert().Equal("order-http-check", response.OrderID)
	suite.Require().Len(response.Payments, 1)
	suite.Assert().Equal(StatusNew, response.Payments[0].Status)
	suite.Assert().Equal("pending", response.Payments[0].ViewStatus)

	rr = suite.post("/check-order", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"OrderId":     "order-http-missing",
	}))
	suite.Require().Equal(http.StatusNotFound, rr.Code)
}

func (suite *ControllersTestSuite) TestGetPaymentState() {
	rr := suite.post("/init", suite.signedBody(suite.initParams("order-http-state")))
	suite.Require().Equal(http.StatusCreated, rr.Code)
	var created InitResult
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &created))

	rr = suite.post("/state", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   created.PaymentID,
	}))
	suite.Require().Equal(http.StatusOK, rr.Code)

	var view PaymentView
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &view))
	suite.Assert().Equal(created.PaymentID, view.PaymentID)
	suite.Assert().Equal(StatusNew, view.Status)
	suite.Require().NotEmpty(view.History)
	suite.Assert().Equal(StatusNew, view.History[0].ToStatus)

	rr = suite.post("/state", suite.signedBody(map[string]interface{}{
		"MerchantKey": testMerchantKey,
		"PaymentId":   "short",
	}))
	suite.Require().Equal(http.StatusBadRequest, rr.Code, "payment ids have a fixed shape")
}

func (suite *ControllersTestSuite) TestRouterMethods() {
	req := httptest.NewRequest(http.MethodGet, "/init", nil)
	rr := httptest.NewRecorder()
	suite.router.ServeHTTP(rr, req)
	suite.Assert().Equal(http.StatusMethodNotAllowed, rr.Code)
}
