// Package browser runs scenario sessions against a real browser through
// Playwright.
//
// # Sessions
//
// A Manager creates one Session per scenario. Setup moves the session
// through its states:
//
//	Uninitialized -> DriverLaunched -> ContextCreated -> PageReady
//
// starting a driver, launching the configured browser family (SlowMo when
// headed), creating an isolated context with a fixed viewport and opening
// exactly one page. When a CredentialStore holds cached state for the
// identity, the context starts from it and the scenario begins logged in.
//
// Teardown always runs, whatever the scenario outcome, as an ordered list
// of isolated stages:
//
//  1. save-state: snapshot the context's storage state into the store
//  2. any extra stages supplied by the caller (failure capture)
//  3. close-page, close-context, close-browser, stop-driver
//
// A failing stage is reported as *TeardownResourceError and never skips
// the stages after it.
//
// # Interactions
//
// Actions wraps the session's page. Elements are described by a Locator
// (role, text, label, test id, placeholder or raw selector); actions use the
// first match in document order. Waits fail with *TimeoutError when they
// expire and leave the session usable.
//
// # Example Usage
//
//	manager := browser.NewManager(drivers, cfg, vault, logger)
//	session, err := manager.Setup(ctx)
//	if err != nil {
//	    return err
//	}
//	defer manager.Teardown(ctx, session)
//
//	actions, err := browser.NewActions(session)
//	err = actions.Goto("/login")
//	err = actions.Fill(browser.ByLabel("Email"), "ops@example.com")
//	err = actions.Click(browser.ByRole("button", "Sign in"))
package browser
