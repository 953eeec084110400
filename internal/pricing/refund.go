package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundReason categorizes why a refund is being claimed. The category alone
// decides which portion of the purchase is refundable.
type RefundReason string

const (
	// ReasonRightOfWithdrawal is the consumer-protection cooling-off claim.
	ReasonRightOfWithdrawal RefundReason = "right_of_withdrawal"

	// ReasonEventCancellation applies when the event will not take place.
	ReasonEventCancellation RefundReason = "event_cancellation"

	// ReasonDateChange applies when the producer moved the event date.
	ReasonDateChange RefundReason = "date_change"

	// ReasonVenueChange applies when the producer moved the venue.
	ReasonVenueChange RefundReason = "venue_change"

	// ReasonSubstantialChange applies when the event changed enough to no
	// longer be what was sold (lineup, format).
	ReasonSubstantialChange RefundReason = "substantial_change"

	// ReasonOther covers anything else; not refundable by policy.
	ReasonOther RefundReason = "other"
)

// Withdrawal window bounds: the claim must arrive within the days after the
// purchase and no later than the hours before the event starts.
const (
	WithdrawalWindowDays  = 10
	WithdrawalCutoffHours = 24
)

// RefundInput carries the purchase figures and timing the policy needs.
type RefundInput struct {
	TotalAmount decimal.Decimal
	BaseAmount  decimal.Decimal
	PurchasedAt time.Time
	EventStart  time.Time
}

// RefundCalculation is the policy outcome. A zero amount is a valid outcome,
// not an error: it means the claim is not eligible under the given reason.
type RefundCalculation struct {
	RefundableAmount     decimal.Decimal `json:"refundable_amount"`
	ServiceFeeRefundable bool            `json:"service_fee_refundable"`
	Reason               RefundReason    `json:"reason"`
}

// EvaluateRefundAt applies the refund policy at the given instant:
//
//	right_of_withdrawal  full refund within the window, else nothing
//	event_cancellation   full refund, fee included
//	substantial_change   full refund, fee included
//	date_change          base only, fee kept
//	venue_change         base only, fee kept
//	anything else        nothing
//
// Date and venue changes refund only the base price because the platform's
// service (matching, payment processing) was already rendered; cancellations
// and substantial changes are full service failures.
func EvaluateRefundAt(in RefundInput, reason RefundReason, now time.Time) RefundCalculation {
	result := RefundCalculation{
		RefundableAmount:     decimal.Zero,
		ServiceFeeRefundable: false,
		Reason:               reason,
	}

	switch reason {
	case ReasonRightOfWithdrawal:
		daysSincePurchase := int(now.Sub(in.PurchasedAt) / (24 * time.Hour))
		hoursUntilEvent := int(in.EventStart.Sub(now) / time.Hour)
		if daysSincePurchase <= WithdrawalWindowDays && hoursUntilEvent >= WithdrawalCutoffHours {
			result.RefundableAmount = in.TotalAmount
			result.ServiceFeeRefundable = true
		}
	case ReasonEventCancellation, ReasonSubstantialChange:
		result.RefundableAmount = in.TotalAmount
		result.ServiceFeeRefundable = true
	case ReasonDateChange, ReasonVenueChange:
		result.RefundableAmount = in.BaseAmount
	}

	return result
}

// EvaluateRefund is EvaluateRefundAt against the wall clock.
func EvaluateRefund(in RefundInput, reason RefundReason) RefundCalculation {
	return EvaluateRefundAt(in, reason, time.Now())
}
