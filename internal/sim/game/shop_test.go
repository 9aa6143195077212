package game

import (
	"testing"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/tuning"
)

func buyIntent(player string, slot int) Intent {
	return Intent{Player: player, Action: protocol.ActionShopBuy, ShopBuy: &protocol.ShopBuyData{Slot: slot}}
}

func TestShopBuyQueuesDelivery(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	offer := p.Shop.Offers[0]
	credits := p.Credits

	mustApply(t, s, buyIntent(alice, 0))
	if p.Credits != credits-offer.Cost {
		t.Fatalf("credits = %d, want %d", p.Credits, credits-offer.Cost)
	}
	if len(p.Shop.Pending) != 1 || len(p.Shop.Stock) != 0 {
		t.Fatalf("pending/stock = %d/%d, want 1/0", len(p.Shop.Pending), len(p.Shop.Stock))
	}
	if p.Shop.Pending[0].PurchaseRound != s.Round() {
		t.Fatalf("purchase round not recorded")
	}

	// Offers are a storefront, not an inventory: buying does not consume
	// the slot.
	if len(p.Shop.Offers) != s.Tuning().Economy.ShopSlots {
		t.Fatalf("offer slots = %d, want %d", len(p.Shop.Offers), s.Tuning().Economy.ShopSlots)
	}

	// Deliveries tick at round rollover.
	for i := 0; i < offer.DeliveryTurns; i++ {
		if len(p.Shop.Stock) != 0 {
			t.Fatalf("delivered %d rounds early", offer.DeliveryTurns-i)
		}
		skipTurn(t, s, alice)
		skipTurn(t, s, bob)
	}
	if len(p.Shop.Stock) != 1 || p.Shop.Stock[0].Type != offer.Type {
		t.Fatalf("stock = %+v, want one %s", p.Shop.Stock, offer.Type)
	}
	if len(p.Shop.Pending) != 0 {
		t.Fatalf("pending should drain on delivery")
	}
}

func TestShopBuyRequiresCredits(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	s.Player(alice).Credits = 0
	mustReject(t, s, buyIntent(alice, 0), protocol.ErrNoResource)
	mustReject(t, s, buyIntent(alice, 99), protocol.ErrBadRequest)
}

func TestShopOverflowRequeuesDelivery(t *testing.T) {
	tun := tuning.Default()
	tun.Economy.MaxStock = 0
	s := newTestStateTuned(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	), tun)
	p := s.Player(alice)
	offer := p.Shop.Offers[0]

	mustApply(t, s, buyIntent(alice, 0))
	for i := 0; i < offer.DeliveryTurns+2; i++ {
		skipTurn(t, s, alice)
		skipTurn(t, s, bob)
	}
	if len(p.Shop.Stock) != 0 {
		t.Fatalf("stock full, nothing may be delivered")
	}
	if len(p.Shop.Pending) != 1 {
		t.Fatalf("overflowing order must stay queued, pending = %d", len(p.Shop.Pending))
	}
}

func TestShopRefundReturnsFullPrice(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	p.Shop.Stock = append(p.Shop.Stock, ShopItem{Type: "SNIPER", Cost: 4})
	credits := p.Credits

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionShopRefund, ShopRefund: &protocol.ShopRefundData{Slot: 0}})
	if p.Credits != credits+4 {
		t.Fatalf("credits = %d, want %d", p.Credits, credits+4)
	}
	if len(p.Shop.Stock) != 0 {
		t.Fatalf("refunded item still in stock")
	}
}

func TestShopRerollRedrawsOffers(t *testing.T) {
	s := newTestState(t, 7, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	credits := p.Credits

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionShopReroll})
	if p.Credits != credits-s.Tuning().Economy.RerollCost {
		t.Fatalf("reroll did not charge its cost")
	}
	if len(p.Shop.Offers) != s.Tuning().Economy.ShopSlots {
		t.Fatalf("offer slots = %d, want %d", len(p.Shop.Offers), s.Tuning().Economy.ShopSlots)
	}

	p.Credits = 0
	mustReject(t, s, Intent{Player: alice, Action: protocol.ActionShopReroll}, protocol.ErrNoResource)
}

func TestPlaceUnitFromStockNeedsLandingZone(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	p.Shop.Stock = append(p.Shop.Stock, ShopItem{Type: "DRONE", Cost: 1})

	// Mid-field is nobody's landing zone.
	mustReject(t, s, Intent{Player: alice, Action: protocol.ActionPlaceUnit, PlaceUnit: &protocol.PlaceUnitData{
		UnitType: "DRONE", Pos: grid.Pos{X: 5, Z: 5},
	}}, protocol.ErrBlocked)

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionPlaceUnit, PlaceUnit: &protocol.PlaceUnitData{
		UnitType: "DRONE", Pos: grid.Pos{X: 4, Z: 0},
	}})
	if len(p.Shop.Stock) != 0 {
		t.Fatalf("deployment must consume the stock item")
	}
	if findUnit(t, s, alice, "DRONE") == nil {
		t.Fatalf("drone not on the board")
	}
}

func TestPlaceUnitFromDeckConsumesCard(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	deckBefore := len(p.Deck)
	cardID := p.Deck[0].ID

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionPlaceUnit, PlaceUnit: &protocol.PlaceUnitData{
		CardID: cardID, Pos: grid.Pos{X: 6, Z: 0},
	}})
	if len(p.Deck) != deckBefore-1 {
		t.Fatalf("deck = %d cards, want %d", len(p.Deck), deckBefore-1)
	}
	if _, _, still := p.card(cardID); still {
		t.Fatalf("played card still in deck")
	}
}

func TestPlaceUnitRejectsOccupiedZone(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 4, 0),
		place(bob, "TROOPER", 9, 9),
	))
	p := s.Player(alice)
	deckBefore := len(p.Deck)

	mustReject(t, s, Intent{Player: alice, Action: protocol.ActionPlaceUnit, PlaceUnit: &protocol.PlaceUnitData{
		CardID: p.Deck[0].ID, Pos: grid.Pos{X: 4, Z: 0},
	}}, protocol.ErrBlocked)
	if len(p.Deck) != deckBefore {
		t.Fatalf("failed placement must not consume the card")
	}
}
