package service

import (
	"github.com/newrelic/go-agent/v3/newrelic"
)

// Recorder receives operational signals about payments.
type Recorder interface {
	RecordInitiation(success bool)
	RecordCallback(report *CallbackReport)
}

// NewRelicRecorder publishes payment signals as New Relic custom events and metrics.
// A nil application turns every call into a no-op.
type NewRelicRecorder struct {
	app *newrelic.Application
}

// NewNewRelicRecorder creates a new NewRelicRecorder.
func NewNewRelicRecorder(app *newrelic.Application) *NewRelicRecorder {
	return &NewRelicRecorder{app: app}
}

// RecordInitiation counts push-payment initiations by result.
func (r *NewRelicRecorder) RecordInitiation(success bool) {
	if r.app == nil {
		return
	}
	name := "Custom/Mpesa/Initiation/Failure"
	if success {
		name = "Custom/Mpesa/Initiation/Success"
	}
	r.app.RecordCustomMetric(name, 1)
}

// RecordCallback emits a PaymentCallback event so unmatched callbacks can be triaged.
func (r *NewRelicRecorder) RecordCallback(report *CallbackReport) {
	if r.app == nil || report == nil {
		return
	}
	r.app.RecordCustomEvent("PaymentCallback", map[string]interface{}{
		"outcome":           string(report.Outcome),
		"resultCode":        report.Result.ResultCode,
		"checkoutRequestId": report.Result.CheckoutRequestID,
		"bookingId":         report.BookingID,
		"matchedBy":         report.MatchedBy,
	})
	r.app.RecordCustomMetric("Custom/Mpesa/Callback/"+string(report.Outcome), 1)
}
