package checkout

import (
	"net/http"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// Payment handlers this merchant accepts.
const (
	HandlerMock      = "mock_payment_handler"
	HandlerGooglePay = "google_pay"
	HandlerShopPay   = "shop_pay"
)

// authorizePayment validates the submitted instrument set and dispatches the
// charge attempt to the instrument's handler. Returns the charged instrument.
// Structural problems (no instrument, no credential, unknown handler) are
// INVALID_REQUEST; a declined charge is PAYMENT_FAILED with a subcode.
func (s *Service) authorizePayment(checkoutID string, req models.PaymentCreateRequest) (*models.PaymentInstrument, error) {
	if len(req.Instruments) == 0 {
		return nil, ucperr.InvalidRequest("payment_data.instruments must not be empty")
	}
	instrument := req.SelectedInstrument()
	if instrument == nil {
		return nil, ucperr.InvalidRequest(
			"selected_instrument_id %q does not match a submitted instrument", req.SelectedInstrumentID)
	}
	if instrument.Credential == nil {
		return nil, ucperr.InvalidRequest("instrument %s carries no credential", instrument.ID)
	}

	if instrument.Credential.IsCard() {
		// Raw card data is accepted without network authorization in this
		// reference implementation. Only the last digits ever reach the log.
		s.logger.Info("accepting card payment",
			"checkout_id", checkoutID,
			"instrument_id", instrument.ID,
			"last_digits", instrument.Credential.LastDigits())
		return instrument, nil
	}

	switch instrument.HandlerID {
	case HandlerMock:
		if err := mockAuthorize(instrument.Credential.Token); err != nil {
			return nil, err
		}
	case HandlerGooglePay, HandlerShopPay:
		// Wallet tokens are trusted as-is.
	default:
		return nil, ucperr.InvalidRequest("Unsupported payment handler: %s", instrument.HandlerID)
	}

	s.logger.Info("payment authorized",
		"checkout_id", checkoutID,
		"instrument_id", instrument.ID,
		"handler_id", instrument.HandlerID)
	return instrument, nil
}

// mockAuthorize implements the deterministic test handler: well-known tokens
// drive the outcome.
func mockAuthorize(token string) error {
	switch token {
	case "success_token":
		return nil
	case "fail_token":
		return ucperr.PaymentFailed("INSUFFICIENT_FUNDS", http.StatusPaymentRequired,
			"Payment declined: insufficient funds")
	case "fraud_token":
		return ucperr.PaymentFailed("FRAUD_DETECTED", http.StatusForbidden,
			"Payment declined: fraud detected")
	default:
		return ucperr.PaymentFailed("UNKNOWN_TOKEN", http.StatusPaymentRequired,
			"Payment declined: unrecognized token")
	}
}
