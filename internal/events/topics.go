package events

// Topics published by the passport domain. Webhook subscriptions filter on
// these names.
const (
	TopicPassportIssued  = "passport.issued"
	TopicVoucherRedeemed = "voucher.redeemed"
	TopicVoucherExpired  = "voucher.expired"
)

// Topics returns every known topic, used to validate webhook subscriptions.
func Topics() []string {
	return []string{TopicPassportIssued, TopicVoucherRedeemed, TopicVoucherExpired}
}

// KnownTopic reports whether the name is a topic this service publishes.
func KnownTopic(name string) bool {
	for _, t := range Topics() {
		if t == name {
			return true
		}
	}
	return false
}
