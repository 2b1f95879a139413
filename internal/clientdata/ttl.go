package clientdata

import "time"

// TTLPriceHistory is the default lifetime of a cached history.
// Live quotes go stale fast, so keep this short.
const TTLPriceHistory = 10 * time.Minute
