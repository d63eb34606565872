package domain

// SeedExamples builds the demo board shown when no stored data exists yet.
// This is the "no data yet" initialization path, deliberately distinct from
// the corrupt-data fallback even though both end up here.
func SeedExamples() *Board {
	return seedExamples(NewOps(NewBoard()))
}

func seedExamples(o *Ops) *Board {
	base := DayStart(o.Now())
	today := base
	tomorrow := base + dayMillis
	overdue := base - dayMillis

	seeds := []struct {
		title string
		col   ColumnID
		due   *int64
	}{
		{"[3D Cure] Cadastrar tarefas TaskRush", ColTodo, &today},
		{"[Under] Verificar orçamentos/campanhas/URLs ativas", ColTodo, &today},
		{"[Paytrack] Novos públicos LinkedIn", ColTodo, &tomorrow},
		{"[Paytrack] Otimização de ads", ColReview, &overdue},
		{"[TODOS] atualizar planilhas de clientes", ColDoing, nil},
		{"[Sestini] Demandas reunião", ColDone, nil},
	}
	// Create inserts at the head, so walk backwards to keep board order.
	for i := len(seeds) - 1; i >= 0; i-- {
		s := seeds[i]
		o.Create(s.title, s.col, s.due)
	}
	return o.Board
}
