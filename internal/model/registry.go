package model

// All lists every table this service owns or reads, in migration order.
func All() []interface{} {
	return []interface{}{
		&Member{},
		&Tier{},
		&Subscription{},
		&Transaction{},
		&WebhookEvent{},
		&ActivityLog{},
		&RoleCommand{},
	}
}
