package pricing

import (
	"strings"

	"github.com/go-faster/errors"
)

// PaymentMethod enumerates the supported ways a customer can pay.
type PaymentMethod string

const (
	// MethodPix is an instant bank transfer.
	MethodPix PaymentMethod = "pix"
	// MethodBoleto is a bank slip, optionally split into installments.
	MethodBoleto PaymentMethod = "boleto"
	// MethodCreditCard is a card charge, subject to a processing fee.
	MethodCreditCard PaymentMethod = "credit_card"
)

// BillingCycle selects which discount tier table applies.
type BillingCycle string

const (
	// CycleMonthly frames the price as a monthly recurring charge.
	CycleMonthly BillingCycle = "monthly"
	// CycleOneTime frames the price as a single purchase.
	CycleOneTime BillingCycle = "one_time"
)

// PaymentType distinguishes recurring subscriptions from one-time purchases.
// One Offer of each type exists per session.
type PaymentType string

const (
	PaymentRecurrent PaymentType = "RECURRENT"
	PaymentOneTime   PaymentType = "ONE_TIME"
)

var (
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrUnknownCycle       = errors.New("unknown billing cycle")
	ErrUnknownPaymentType = errors.New("unknown payment type")
)

// ParseMethod converts a wire value into a PaymentMethod.
func ParseMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodPix, MethodBoleto, MethodCreditCard:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnknownMethod, "%q", s)
	}
}

// ParseCycle converts a wire value into a BillingCycle.
func ParseCycle(s string) (BillingCycle, error) {
	switch c := BillingCycle(strings.ToLower(strings.TrimSpace(s))); c {
	case CycleMonthly, CycleOneTime:
		return c, nil
	default:
		return "", errors.Wrapf(ErrUnknownCycle, "%q", s)
	}
}

// ParsePaymentType converts a wire value into a PaymentType.
func ParsePaymentType(s string) (PaymentType, error) {
	switch t := PaymentType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PaymentRecurrent, PaymentOneTime:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownPaymentType, "%q", s)
	}
}

// Cycle returns the billing cycle an offer of this payment type is priced on.
func (t PaymentType) Cycle() BillingCycle {
	switch t {
	case PaymentRecurrent:
		return CycleMonthly
	case PaymentOneTime:
		return CycleOneTime
	default:
		panic("unreachable: payment type " + string(t))
	}
}

// AllowsInstallments reports whether the method can split a one-time total.
func (m PaymentMethod) AllowsInstallments() bool {
	switch m {
	case MethodPix:
		return false
	case MethodBoleto, MethodCreditCard:
		return true
	default:
		panic("unreachable: payment method " + string(m))
	}
}
