package service

import "order-desk/internal/models"

// LineOutcome is the effect of one order line on its article's stock
type LineOutcome struct {
	NewStock int
	Warning  *models.StockWarning
}

// ComputeLineOutcome subtracts amount from the article's stock. A warning is
// produced when the result falls strictly below the minimum stock. The result
// is not floored at zero.
func ComputeLineOutcome(article *models.Article, amount int) LineOutcome {
	newStock := article.Stock - amount

	outcome := LineOutcome{NewStock: newStock}
	if newStock < article.MinimumStock {
		outcome.Warning = &models.StockWarning{
			ArticleID:    article.ID,
			ArticleName:  article.Name,
			NewStock:     newStock,
			MinimumStock: article.MinimumStock,
		}
	}
	return outcome
}
