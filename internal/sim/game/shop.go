package game

import (
	"neontactics.gg/internal/protocol"
)

// The shop is per-player: Offers are re-rollable purchase slots, Pending
// holds orders in delivery, Stock holds delivered items ready to place.
// Whether an item is "in stock" or "on order" follows from which container
// it sits in, never from a flag.

// rollOffers redraws every offer slot from the player's unlocked pool.
// Draws come from the shared match RNG, so both peers must perform them in
// identical order.
func (s *State) rollOffers(p *Player) {
	n := s.tun.Economy.ShopSlots
	p.Shop.Offers = p.Shop.Offers[:0]
	if len(p.Unlocked) == 0 {
		return
	}
	for i := 0; i < n; i++ {
		typ := p.Unlocked[s.rng.Intn(len(p.Unlocked))]
		def := s.cats.Units.ByType[typ]
		p.Shop.Offers = append(p.Shop.Offers, ShopItem{
			Type:          def.Type,
			Cost:          def.Cost,
			DeliveryTurns: def.DeliveryTurns,
		})
	}
}

func (s *State) shopBuy(p *Player, slot int) Result {
	if slot < 0 || slot >= len(p.Shop.Offers) {
		return fail(protocol.ErrBadRequest, "no such shop slot")
	}
	item := p.Shop.Offers[slot]
	if p.Credits < item.Cost {
		return fail(protocol.ErrNoResource, "not enough credits")
	}
	p.Credits -= item.Cost
	order := item
	order.PurchaseRound = s.round
	p.Shop.Pending = append(p.Shop.Pending, order)
	s.logf(p.ID, "ordered %s for %d credits (delivery in %d turns)", item.Type, item.Cost, item.DeliveryTurns)
	return ok("ordered " + item.Type)
}

// shopRefund returns a delivered stock item for its full price.
func (s *State) shopRefund(p *Player, slot int) Result {
	if slot < 0 || slot >= len(p.Shop.Stock) {
		return fail(protocol.ErrBadRequest, "no such stock slot")
	}
	item := p.Shop.Stock[slot]
	p.Shop.Stock = append(p.Shop.Stock[:slot], p.Shop.Stock[slot+1:]...)
	p.Credits += item.Cost
	s.logf(p.ID, "refunded %s for %d credits", item.Type, item.Cost)
	return ok("refunded " + item.Type)
}

func (s *State) shopReroll(p *Player) Result {
	cost := s.tun.Economy.RerollCost
	if p.Credits < cost {
		return fail(protocol.ErrNoResource, "not enough credits to reroll")
	}
	p.Credits -= cost
	s.rollOffers(p)
	s.logf(p.ID, "rerolled shop offers")
	return ok("rerolled")
}

// processDeliveries runs once per round: in-flight timers tick down and
// items arriving at zero land in stock when capacity allows; overflow goes
// back in the queue with a short timer.
func (s *State) processDeliveries(p *Player) {
	remaining := p.Shop.Pending[:0]
	for _, item := range p.Shop.Pending {
		item.DeliveryTurns--
		if item.DeliveryTurns > 0 {
			remaining = append(remaining, item)
			continue
		}
		if len(p.Shop.Stock) >= s.tun.Economy.MaxStock {
			item.DeliveryTurns = s.tun.Economy.OverflowDelay
			remaining = append(remaining, item)
			s.logf(p.ID, "delivery of %s delayed: stock full", item.Type)
			continue
		}
		item.DeliveryTurns = 0
		p.Shop.Stock = append(p.Shop.Stock, item)
		s.logf(p.ID, "%s delivered", item.Type)
	}
	p.Shop.Pending = remaining
}

// stockIndex finds a delivered item of the given type.
func (p *Player) stockIndex(unitType string) int {
	for i, item := range p.Shop.Stock {
		if item.Type == unitType {
			return i
		}
	}
	return -1
}
