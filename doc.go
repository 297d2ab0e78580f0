// Package treerag selects the parts of a document tree that are relevant to a
// query, in process, without the HTTP server.
//
// A traversal starts at the root and expands only the nodes that pass a
// relevance gate: a dual-stage filter (an optional LLM judge combined with
// keyword overlap), a relevance model (semantic, structural and contextual
// signals), or both. Nodes the gate rejected are rescanned when the filter
// looks too aggressive.
//
//	client, _ := treerag.New(
//	    treerag.WithJudge(myJudge),
//	    treerag.WithLogger(slog.Default()),
//	)
//	res, _ := client.Traverse(ctx, root, "arrow functions", 5, 3)
//	for _, n := range res.Selected {
//	    fmt.Println(n.Title)
//	}
//	fmt.Println(client.Report(res, 10))
package treerag
