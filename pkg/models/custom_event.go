/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package models

// UserIdentifiers are the identities ODP uses to resolve a customer profile
type UserIdentifiers struct {
	AnonymousID string `json:"anonymousId,omitempty" mapstructure:"anonymousId"`
	UserID      string `json:"userId,omitempty" mapstructure:"userId"`
	Email       string `json:"email,omitempty" mapstructure:"email"`
}

// Key returns the strongest identity available, preferring userId, then
// anonymousId, then email. It is empty when no identity is set.
func (u *UserIdentifiers) Key() string {
	if u == nil {
		return ""
	}
	switch {
	case u.UserID != "":
		return "userId:" + u.UserID
	case u.AnonymousID != "":
		return "anonymousId:" + u.AnonymousID
	case u.Email != "":
		return "email:" + u.Email
	}
	return ""
}

// Product is a single commerce line item
type Product struct {
	ProductID string `json:"product_id,omitempty" mapstructure:"product_id"`

	// Qty is nil when the source line item had neither qty nor quantity
	Qty *float64 `json:"qty,omitempty" mapstructure:"qty"`
}

// CustomEvent is a mapped and validated ODP custom event. A CustomEvent
// returned by the mapper always has a non-empty EventAction.
type CustomEvent struct {
	UserIdentifiers *UserIdentifiers `json:"user_identifiers,omitempty" mapstructure:"user_identifiers"`
	EventType       string           `json:"event_type,omitempty" mapstructure:"event_type"`
	EventAction     string           `json:"event_action" mapstructure:"event_action"`
	Products        []Product        `json:"products,omitempty" mapstructure:"products"`
	OrderID         string           `json:"order_id,omitempty" mapstructure:"order_id"`
	Total           *float64         `json:"total,omitempty" mapstructure:"total"`
	Timestamp       string           `json:"timestamp,omitempty" mapstructure:"timestamp"`
}
