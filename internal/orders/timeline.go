package orders

import (
	"sort"

	"github.com/gehnabox/orders-service/internal/domain"
)

// StatusBadge is the display mapping for one status. The storefront and the
// back-office both render the timeline from these.
type StatusBadge struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var statusBadges = map[domain.OrderStatus]StatusBadge{
	domain.OrderStatusPending:    {Label: "Pending", Color: "amber", Icon: "clock"},
	domain.OrderStatusConfirmed:  {Label: "Confirmed", Color: "blue", Icon: "check-circle"},
	domain.OrderStatusProcessing: {Label: "Processing", Color: "indigo", Icon: "cog"},
	domain.OrderStatusShipped:    {Label: "Shipped", Color: "violet", Icon: "truck"},
	domain.OrderStatusDelivered:  {Label: "Delivered", Color: "green", Icon: "package-check"},
	domain.OrderStatusCancelled:  {Label: "Cancelled", Color: "red", Icon: "x-circle"},
}

// neutralBadge is the fallback for status strings that are not part of the
// enum. The field is not strictly typed at the HTTP boundary, so the
// renderer must not choke on an unrecognized value.
var neutralBadge = StatusBadge{Label: "Unknown", Color: "gray", Icon: "circle"}

// BadgeFor returns the display mapping for a status, falling back to the
// neutral badge for anything unrecognized.
func BadgeFor(status domain.OrderStatus) StatusBadge {
	if badge, ok := statusBadges[status]; ok {
		return badge
	}
	badge := neutralBadge
	if status != "" {
		badge.Label = string(status)
	}
	return badge
}

// SortTimeline orders tracking entries newest-first regardless of insertion
// order. Ties on timestamp fall back to id so the sequence is stable.
func SortTimeline(entries []domain.TrackingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}
