package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/reranker"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

type searchFlags struct {
	n          int
	table      string
	preFilter  string
	postFilter string
	searchType string
	efSearch   int
	weight     float64
	idsOnly    bool
	rerank     bool
	rerankW    float64
}

func (f *searchFlags) params(hybrid bool) (vectorindex.SearchParams, error) {
	var p vectorindex.SearchParams
	var err error
	if p.PreFilter, err = filter.Parse(f.preFilter); err != nil {
		return p, err
	}
	if p.PostFilter, err = filter.Parse(f.postFilter); err != nil {
		return p, err
	}
	if err := p.SearchType.UnmarshalText([]byte(f.searchType)); err != nil {
		return p, err
	}
	p.Params = map[string]any{}
	if f.efSearch > 0 {
		p.Params[vectorindex.ParamEfSearch] = f.efSearch
	}
	if hybrid && f.weight >= 0 {
		p.Params[vectorindex.ParamHybridWeight] = f.weight
	}
	return p, nil
}

// newSearchCmd builds "search", or "hybrid" when hybrid is set.
func newSearchCmd(g *globals, hybrid bool) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank records by vector similarity to a query",
		Long: `Rank records by vector similarity to a query and print them as JSON.

Filters use the expression syntax, for example:
  category = 'news' AND (year >= 2020 OR NOT (tags CONTAINS 'draft'))

--pre-filter is evaluated before ranking; --post-filter only trims the top n,
so fewer than n results may come back.

Examples:
  vectorindex search "cats on mats" -n 5
  vectorindex search "cats" --pre-filter "category = 'pets'" --ids`,
		Args: cobra.MinimumNArgs(1),
	}
	if hybrid {
		cmd.Use = "hybrid <query>"
		cmd.Short = "Rank records by a blend of lexical and vector similarity"
		cmd.Long = `Rank records by weight*lexical + (1-weight)*vector similarity. Only records
whose metadata text shares a term with the query qualify.

Examples:
  vectorindex hybrid "golden retriever" -n 10 --weight 0.7`
		cmd.Flags().Float64Var(&f.weight, "weight", -1, "lexical share in [0, 1] (default: index hybrid_weight)")
	} else {
		cmd.Flags().BoolVar(&f.idsOnly, "ids", false, "print ids and scores only")
	}
	cmd.Flags().IntVarP(&f.n, "n", "n", 10, "number of results")
	cmd.Flags().StringVar(&f.table, "table", "", "table to search (default: the index table)")
	cmd.Flags().StringVar(&f.preFilter, "pre-filter", "", "filter applied before ranking")
	cmd.Flags().StringVar(&f.postFilter, "post-filter", "", "filter applied to the ranked results")
	cmd.Flags().StringVar(&f.searchType, "search-type", "", "exact, approximate or similarity")
	cmd.Flags().IntVar(&f.efSearch, "ef-search", 0, "HNSW candidate list size")
	cmd.Flags().BoolVar(&f.rerank, "rerank", false, "rescore results by query term overlap")
	cmd.Flags().Float64Var(&f.rerankW, "rerank-weight", reranker.DefaultWeight, "term overlap share when reranking")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")
		params, err := f.params(hybrid)
		if err != nil {
			return err
		}
		a, err := loadApp(ctx, g)
		if err != nil {
			return err
		}
		defer a.Close()
		table := f.table
		if table == "" {
			table = a.index.Table()
		}

		if f.idsOnly {
			ids, err := a.index.TopNIDs(ctx, query, f.n, table, params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ids)
		}

		var results []vectorindex.Result[map[string]any]
		if hybrid {
			results, err = vectorindex.HybridSearch[map[string]any](ctx, a.index, query, f.n, table, params)
		} else {
			results, err = vectorindex.TopN[map[string]any](ctx, a.index, query, f.n, table, params)
		}
		if err != nil {
			return err
		}
		if f.rerank {
			r, err := reranker.NewTermOverlap(query, f.rerankW)
			if err != nil {
				return err
			}
			results = vectorindex.Rerank(results, reranker.MetadataScorer(r))
		}
		if results == nil {
			results = []vectorindex.Result[map[string]any]{}
		}
		return printJSON(cmd.OutOrStdout(), results)
	}
	return cmd
}
