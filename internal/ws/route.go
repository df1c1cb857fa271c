package ws

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/engine"
)

type route struct {
	channel string
	private bool
	owner   common.Address
}

func public(channel string) route {
	return route{channel: channel}
}

func private(channel string, owner common.Address) route {
	return route{channel: channel, private: true, owner: owner}
}

// routesFor lists the channels an engine event is pushed on. Fills and
// liquidations are trades; everything that touches a trader's state goes to
// that trader's private channels.
func routesFor(ev engine.Event) []route {
	switch p := ev.Payload.(type) {
	case *engine.MarketInitializedEvent, *engine.MarketStatusEvent, *engine.MarketParamsUpdatedEvent:
		return []route{public(ChannelMarkets)}
	case *engine.FundingRateUpdatedEvent, *engine.FundingUpdatedEvent:
		return []route{public(ChannelFundingRate)}
	case *engine.OracleEvent:
		return []route{public(ChannelMarkPrice)}
	case *engine.MarginAccountCreatedEvent:
		return []route{private(ChannelAccount, p.Owner)}
	case *engine.CollateralEvent:
		return []route{private(ChannelAccount, p.Owner)}
	case *engine.PositionOpenedEvent:
		return []route{public(ChannelTrades), private(ChannelPositions, p.Trader)}
	case *engine.PositionClosedEvent:
		return []route{public(ChannelTrades), private(ChannelPositions, p.Trader)}
	case *engine.PositionLiquidatedEvent:
		return []route{
			public(ChannelTrades),
			private(ChannelPositions, p.Trader),
			private(ChannelAccount, p.Liquidator),
		}
	case *engine.MarginAdjustedEvent:
		return []route{private(ChannelPositions, p.Trader)}
	case *engine.FundingSettledEvent:
		return []route{private(ChannelPositions, p.Trader)}
	case *engine.OrderEvent:
		return []route{private(ChannelOrders, p.Trader)}
	}
	return nil
}
