package validators

import (
	"regexp"

	"github.com/asaskevich/govalidator"
)

func init() {
	govalidator.TagMap["currency"] = govalidator.Validator(IsCurrencyCode)
	govalidator.TagMap["paymentid"] = govalidator.Validator(IsPaymentID)
	govalidator.TagMap["orderid"] = govalidator.Validator(IsOrderID)
	govalidator.TagMap["language"] = govalidator.Validator(IsLanguageCode)
	govalidator.TagMap["cardexpiry"] = govalidator.Validator(IsCardExpiry)
}

const (
	currencyCode string = "^[A-Z]{3}$"
	paymentID    string = "^[0-9a-v]{20}$"
	orderID      string = "^[0-9A-Za-z_.-]{1,64}$"
	languageCode string = "^[a-z]{2}$"
	cardExpiry   string = "^(0[1-9]|1[0-2])/[0-9]{2}$"
)

var (
	rxCurrencyCode = regexp.MustCompile(currencyCode)
	rxPaymentID    = regexp.MustCompile(paymentID)
	rxOrderID      = regexp.MustCompile(orderID)
	rxLanguageCode = regexp.MustCompile(languageCode)
	rxCardExpiry   = regexp.MustCompile(cardExpiry)
)

// IsCurrencyCode returns true if the string str is an ISO-4217 shaped currency code
func IsCurrencyCode(str string) bool {
	return rxCurrencyCode.MatchString(str)
}

// IsPaymentID returns true if the string str is a server generated payment id
func IsPaymentID(str string) bool {
	return rxPaymentID.MatchString(str)
}

// IsOrderID returns true if the string str is an acceptable merchant order id
func IsOrderID(str string) bool {
	return rxOrderID.MatchString(str)
}

// IsLanguageCode returns true if the string str is a two letter language code
func IsLanguageCode(str string) bool {
	return rxLanguageCode.MatchString(str)
}

// IsCardExpiry returns true if the string str is an MM/YY card expiry
func IsCardExpiry(str string) bool {
	return rxCardExpiry.MatchString(str)
}
