// Package ledger derives every view the client screens need from a raw
// transaction list: normalization, aggregation and per-screen projections.
// Everything in this package is pure; fetching belongs to the service layer.
package ledger

import (
	"strings"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// IconSpec is one entry of the static icon catalogue.
type IconSpec struct {
	Key   string
	Color string
}

// iconTable is the catalogue the client offers when adding a transaction.
// Its order is part of the contract: unknown icons fall back by position.
var iconTable = []IconSpec{
	{Key: "cash-outline", Color: "#10B981"},
	{Key: "card-outline", Color: "#3B82F6"},
	{Key: "wallet-outline", Color: "#F59E0B"},
	{Key: "briefcase-outline", Color: "#8B5CF6"},
	{Key: "trending-up-outline", Color: "#EF4444"},
	{Key: "gift-outline", Color: "#FBBF24"},
	{Key: "star-outline", Color: "#EC4899"},
	{Key: "home-outline", Color: "#06B6D4"},
	{Key: "school-outline", Color: "#10B981"},
	{Key: "rocket-outline", Color: "#F97316"},
	{Key: "pizza-outline", Color: "#EF4444"},
	{Key: "car-outline", Color: "#F59E0B"},
	{Key: "shirt-outline", Color: "#8B5CF6"},
	{Key: "game-controller-outline", Color: "#3B82F6"},
	{Key: "musical-notes-outline", Color: "#EC4899"},
	{Key: "film-outline", Color: "#10B981"},
	{Key: "book-outline", Color: "#FBBF24"},
	{Key: "heart-outline", Color: "#EF4444"},
	{Key: "airplane-outline", Color: "#06B6D4"},
	{Key: "basketball-outline", Color: "#F97316"},
	{Key: "beer-outline", Color: "#8B5CF6"},
	{Key: "cafe-outline", Color: "#F59E0B"},
	{Key: "fast-food-outline", Color: "#10B981"},
	{Key: "restaurant-outline", Color: "#EC4899"},
	{Key: "wine-outline", Color: "#3B82F6"},
	{Key: "gas-outline", Color: "#F97316"},
	{Key: "bus-outline", Color: "#06B6D4"},
	{Key: "train-outline", Color: "#8B5CF6"},
	{Key: "bicycle-outline", Color: "#10B981"},
	{Key: "walk-outline", Color: "#FBBF24"},
	{Key: "cart-outline", Color: "#EF4444"},
	{Key: "bag-handle-outline", Color: "#F59E0B"},
	{Key: "pricetag-outline", Color: "#3B82F6"},
	{Key: "receipt-outline", Color: "#8B5CF6"},
	{Key: "calculator-outline", Color: "#10B981"},
	{Key: "phone-portrait-outline", Color: "#EC4899"},
	{Key: "tablet-portrait-outline", Color: "#F97316"},
	{Key: "laptop-outline", Color: "#06B6D4"},
	{Key: "desktop-outline", Color: "#FBBF24"},
	{Key: "glasses-outline", Color: "#EF4444"},
	{Key: "medkit-outline", Color: "#10B981"},
	{Key: "bandage-outline", Color: "#3B82F6"},
	{Key: "barbell-outline", Color: "#F59E0B"},
	{Key: "construct-outline", Color: "#8B5CF6"},
	{Key: "hammer-outline", Color: "#EC4899"},
	{Key: "trash-outline", Color: "#EF4444"},
	{Key: "battery-charging-outline", Color: "#10B981"},
	{Key: "wifi-outline", Color: "#3B82F6"},
	{Key: "bluetooth-outline", Color: "#F59E0B"},
	{Key: "headset-outline", Color: "#8B5CF6"},
	{Key: "volume-high-outline", Color: "#EC4899"},
	{Key: "bulb-outline", Color: "#FBBF24"},
	{Key: "flashlight-outline", Color: "#F97316"},
	{Key: "battery-dead-outline", Color: "#EF4444"},
	{Key: "sunny-outline", Color: "#F59E0B"},
	{Key: "cloudy-night-outline", Color: "#06B6D4"},
	{Key: "rainy-outline", Color: "#3B82F6"},
	{Key: "snow-outline", Color: "#10B981"},
	{Key: "partly-sunny-outline", Color: "#8B5CF6"},
	{Key: "chatbubble-ellipses-outline", Color: "#EC4899"},
	{Key: "mail-outline", Color: "#F97316"},
	{Key: "person-outline", Color: "#06B6D4"},
	{Key: "people-outline", Color: "#FBBF24"},
	{Key: "woman-outline", Color: "#EF4444"},
	{Key: "man-outline", Color: "#10B981"},
	{Key: "accessibility-outline", Color: "#3B82F6"},
	{Key: "happy-outline", Color: "#F59E0B"},
	{Key: "sad-outline", Color: "#8B5CF6"},
	{Key: "paw-outline", Color: "#EC4899"},
	{Key: "flower-outline", Color: "#F97316"},
	{Key: "leaf-outline", Color: "#06B6D4"},
	{Key: "water-outline", Color: "#10B981"},
	{Key: "earth-outline", Color: "#3B82F6"},
	{Key: "globe-outline", Color: "#F59E0B"},
	{Key: "navigate-outline", Color: "#8B5CF6"},
	{Key: "location-outline", Color: "#EC4899"},
	{Key: "pin-outline", Color: "#F97316"},
	{Key: "compass-outline", Color: "#06B6D4"},
	{Key: "timer-outline", Color: "#FBBF24"},
	{Key: "alarm-outline", Color: "#EF4444"},
	{Key: "stopwatch-outline", Color: "#10B981"},
	{Key: "hourglass-outline", Color: "#3B82F6"},
	{Key: "settings-outline", Color: "#F59E0B"},
	{Key: "help-circle-outline", Color: "#8B5CF6"},
	{Key: "information-circle-outline", Color: "#EC4899"},
}

var iconIndex = func() map[string]int {
	m := make(map[string]int, len(iconTable))
	for i, ic := range iconTable {
		m[ic.Key] = i
	}
	return m
}()

// Icons returns a copy of the catalogue, in table order.
func Icons() []domain.Icon {
	out := make([]domain.Icon, len(iconTable))
	for i, ic := range iconTable {
		out[i] = ic.descriptor()
	}
	return out
}

// LookupIcon finds an icon by key. Matching ignores case and surrounding space.
func LookupIcon(key string) (domain.Icon, bool) {
	i, ok := iconIndex[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return domain.Icon{}, false
	}
	return iconTable[i].descriptor(), true
}

// ResolveIcon returns the icon for key, or the entry at position mod table
// size when key is empty or unknown. The fallback depends only on the
// position so repeated normalization of the same input is stable.
func ResolveIcon(key string, position int) domain.Icon {
	if icon, ok := LookupIcon(key); ok {
		return icon
	}
	if position < 0 {
		position = -position
	}
	return iconTable[position%len(iconTable)].descriptor()
}

func (s IconSpec) descriptor() domain.Icon {
	return domain.Icon{Key: s.Key, Color: s.Color, Category: categoryFromKey(s.Key)}
}

// categoryFromKey turns "game-controller-outline" into "game controller".
func categoryFromKey(key string) string {
	label := strings.TrimSuffix(key, "-outline")
	return strings.TrimSpace(strings.ReplaceAll(label, "-", " "))
}
