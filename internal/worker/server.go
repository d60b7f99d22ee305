package worker

import (
	"github.com/hibiken/asynq"
)

// NewServer returns the asynq server that runs watch tasks. Each tick is
// one short status read against the provider, so modest concurrency is
// enough and keeps the polling rate polite.
func NewServer(redisURL string) *asynq.Server {
	opt, err := ParseRedisURL(redisURL)
	if err != nil {
		panic("failed to parse Redis URL: " + err.Error())
	}

	return asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 10,
		},
	)
}
