package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/lwp"
)

// subscriptionBuffer covers a full default event history plus headroom.
const subscriptionBuffer = 256

// Subscribe subscribes to a channel and returns its events. The server
// replays the job's history then forwards live events. The channel is
// closed after the terminal event, on Unsubscribe, or when the client
// disconnects.
//
// The only channel family is "job:<jobID>".
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *job.Event, error) {
	// Register before asking so no replayed event is missed.
	ch, err := c.addSubscription(channel, subscriptionBuffer)
	if err != nil {
		return nil, err
	}

	if _, err := c.request(ctx, lwp.MethodSubscribe, lwp.SubscribeRequest{Channel: channel}); err != nil {
		c.removeSubscription(channel)
		return nil, fmt.Errorf("subscribe to %q: %w", channel, err)
	}
	return ch, nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	_, err := c.request(ctx, lwp.MethodUnsubscribe, lwp.UnsubscribeRequest{Channel: channel})

	// Close and remove the local channel regardless.
	c.removeSubscription(channel)
	return err
}

// Follow subscribes to a job's events. It is shorthand for subscribing
// to "job:<jobID>".
func (c *Client) Follow(ctx context.Context, jobID string) (<-chan *job.Event, error) {
	return c.Subscribe(ctx, lwp.JobChannel(jobID))
}

// Stats retrieves engine and connection statistics from the server.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.request(ctx, lwp.MethodStats, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
