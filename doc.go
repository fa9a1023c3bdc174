// Package crowdsale implements a multi-round crowdsale ledger.
//
// Contributors buy into a time-boxed round with a base currency. Each
// contribution earns an entitlement of contribution × rate tokens, which is
// only minted when claimed. After the round's end time the owner finalizes
// it: if the total raised reached the soft cap the round is successful,
// contributors claim their tokens and the owner withdraws the raised funds
// to the treasury; otherwise contributors refund their contributions.
//
// A new round can only start once the previous one is finalized and every
// refund or withdrawal has drained the held balance to zero. Any historical
// round can still be claimed, refunded or withdrawn by id.
//
// # Quick Start
//
//	s := memory.New()
//	tok := token.New(s)
//	bank := wallet.NewBank(nil)
//
//	l := crowdsale.New(s,
//	    crowdsale.WithAddress(saleAddr),
//	    crowdsale.WithMinter(tok),
//	    crowdsale.WithTransferer(bank),
//	)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	_ = tok.Deploy(ctx, owner)
//	_ = tok.GrantRole(ctx, owner, access.RoleMinter, saleAddr)
//	_ = l.Initialize(ctx, owner, treasury)
//
//	_, err := l.StartRound(ctx, owner, crowdsale.RoundParams{
//	    Rate:    crowdsale.NewAmount(200),
//	    SoftCap: crowdsale.MustParseEther("0.1"),
//	    EndTime: time.Now().Add(time.Hour),
//	})
//
// # Errors
//
// Rejections leave no partial writes. Use IsAuthorizationError, IsPhaseError,
// IsDoubleResolution, IsZeroValue and IsRoundCreationError to tell them apart.
//
// # Upgrades
//
// The proxy package keeps a stable entry point over versioned releases of
// the Ledger that share one store; see proxy.EntryPoint.
package crowdsale
