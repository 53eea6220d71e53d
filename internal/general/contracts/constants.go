package contracts

// Exchanges
const (
	ExchangePoolTopic   = "pool_topic"
	ExchangeDriverTopic = "driver_topic"
)

// Queues
const (
	QueuePoolEvents   = "pool_events"
	QueueDriverOffers = "driver_offers"
)

// Routing patterns
const (
	RoutePoolPrefix   = "pool."   // {pool_id}
	RouteDriverPrefix = "driver." // {driver_id}
)
