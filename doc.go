// Package idcore is an embeddable identity-and-access core for
// multi-tenant membership platforms. It owns credential verification,
// token issuance, account recovery, capability derivation, and account
// lifecycle; the member directory and notification delivery stay with
// the host application behind the DirectoryStore and Notifier
// interfaces.
//
// Construct an Engine through the Builder:
//
//	engine, err := idcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithDirectory(store).
//		WithNotifier(mailer).
//		Build()
//
// All Engine operations are safe for concurrent use.
package idcore
