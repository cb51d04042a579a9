package scan

import "github.com/creasty/defaults"

type Options struct {
	// Concurrency limits the number of partition queries in flight.
	// Zero means one goroutine per feed range.
	Concurrency int `json:"concurrency" default:"0" validate:"gte=0"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
