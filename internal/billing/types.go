// Package billing recognises statement and subscription mail and extracts
// billing entries from it.
package billing

import "strings"

const (
	TypeCreditCard = "credit_card"
	TypeMembership = "membership"
	TypeUtility    = "utility"
	TypeInsurance  = "insurance"
	TypeLoan       = "loan"
	TypeOther      = "other"
)

// Types maps a billing type to its display name.
var Types = map[string]string{
	TypeCreditCard: "信用卡",
	TypeMembership: "会员订阅",
	TypeUtility:    "水电燃气",
	TypeInsurance:  "保险",
	TypeLoan:       "贷款",
	TypeOther:      "其他",
}

func TypeName(t string) string {
	if name, ok := Types[t]; ok {
		return name
	}
	return Types[TypeOther]
}

type sender struct {
	keyword string
	kind    string
}

// Known billing senders, matched as lower-case substrings of the From header.
var Senders = []sender{
	{"招商银行", TypeCreditCard},
	{"工商银行", TypeCreditCard},
	{"建设银行", TypeCreditCard},
	{"交通银行", TypeCreditCard},
	{"中国银行", TypeCreditCard},
	{"农业银行", TypeCreditCard},
	{"浦发银行", TypeCreditCard},
	{"中信银行", TypeCreditCard},
	{"民生银行", TypeCreditCard},
	{"光大银行", TypeCreditCard},
	{"平安银行", TypeCreditCard},
	{"广发银行", TypeCreditCard},
	{"citibank", TypeCreditCard},
	{"hsbc", TypeCreditCard},
	{"netflix", TypeMembership},
	{"spotify", TypeMembership},
	{"youtube", TypeMembership},
	{"apple", TypeMembership},
	{"microsoft", TypeMembership},
	{"adobe", TypeMembership},
	{"dropbox", TypeMembership},
	{"notion", TypeMembership},
	{"openai", TypeMembership},
	{"东方航空", TypeMembership},
	{"南方航空", TypeMembership},
	{"国航", TypeMembership},
	{"海航", TypeMembership},
}

func senderType(from string) (string, bool) {
	from = strings.ToLower(from)
	for _, s := range Senders {
		if strings.Contains(from, s.keyword) {
			return s.kind, true
		}
	}
	return "", false
}

// DetectType guesses the billing type from the sender, then the subject.
func DetectType(from, subject string) string {
	if t, ok := senderType(from); ok {
		return t
	}
	subject = strings.ToLower(subject)
	for _, kw := range []string{"信用卡", "credit card", "账单"} {
		if strings.Contains(subject, kw) {
			return TypeCreditCard
		}
	}
	for _, kw := range []string{"会员", "订阅", "membership", "subscription"} {
		if strings.Contains(subject, kw) {
			return TypeMembership
		}
	}
	return TypeOther
}
