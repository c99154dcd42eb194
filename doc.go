// Package bunrepo wires repositories to sessions. A Provider opens one
// database.Session per Scope, and Resolve returns the scope's repository for
// an entity type:
//
//	provider, _ := bunrepo.NewProviderFromDB(db)
//	scope, _ := provider.NewScope(ctx)
//	defer scope.Close()
//	customers, _ := bunrepo.Resolve[Customer](scope)
//	res := customers.Find(ctx, types.FilterByID(id))
package bunrepo
