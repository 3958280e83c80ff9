package sqlstore

import "github.com/goliatone/go-hooks/core"

var (
	_ core.WebhookStore           = (*WebhookStore)(nil)
	_ core.WebhookStore           = (*CachedWebhookStore)(nil)
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
