package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	hooks "github.com/goliatone/go-hooks"
)

// RegisterFacade registers every webhook command with the adapter registry
// and subscribes commands and queries on the go-command dispatcher. Queries
// are only subscribed; registry resolvers are meant for commands.
func RegisterFacade(adapter *RegistryAdapter, facade *hooks.Facade, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}

	subs := make([]commanddispatcher.Subscription, 0, 11)
	rollback := func(err error) ([]commanddispatcher.Subscription, error) {
		for _, sub := range subs {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
		return nil, err
	}
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	cmds := facade.Commands()
	for _, register := range []func() error{
		func() error { return add(RegisterAndSubscribe(adapter, cmds.CreateWebhook, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.UpdateWebhook, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.DeleteWebhook, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.RegenerateSecret, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.SendTestEvent, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.RetryDelivery, runnerOpts...)) },
		func() error { return add(RegisterAndSubscribe(adapter, cmds.DispatchEvent, runnerOpts...)) },
	} {
		if err := register(); err != nil {
			return rollback(fmt.Errorf("gocommand: register webhook command: %w", err))
		}
	}

	qrys := facade.Queries()
	subs = append(subs,
		SubscribeQuery(qrys.ListWebhooks, runnerOpts...),
		SubscribeQuery(qrys.GetWebhook, runnerOpts...),
		SubscribeQuery(qrys.ListDeliveries, runnerOpts...),
		SubscribeQuery(qrys.GetDelivery, runnerOpts...),
	)
	return subs, nil
}
