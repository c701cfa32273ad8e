package plan

import "github.com/slymnaltan/frame-app/retention/internal/domain/model"

// Встроенные тарифы. Цены в курушах.
var defaultRental = []model.Tier{
	{ID: FreeTier, Days: 1, Price: 0, Label: "1 Gün (Ücretsiz)"},
	{ID: "week", Days: 7, Price: 4999, Label: "1 Hafta"},
	{ID: "twoWeeks", Days: 14, Price: 8999, Label: "2 Hafta"},
	{ID: "month", Days: 30, Price: 14999, Label: "1 Ay"},
	{ID: "threeMonths", Days: 90, Price: 39999, Label: "3 Ay"},
	{ID: "sixMonths", Days: 180, Price: 69999, Label: "6 Ay"},
	{ID: "year", Days: 365, Price: 119999, Label: "1 Yıl"},
}

var defaultStorage = []model.Tier{
	{ID: FreeTier, Days: 3, Price: 0, Label: "3 Gün (Ücretsiz)"},
	{ID: "week", Days: 7, Price: 2999, Label: "1 Hafta"},
	{ID: "twoWeeks", Days: 14, Price: 4999, Label: "2 Hafta"},
	{ID: "month", Days: 30, Price: 7999, Label: "1 Ay"},
	{ID: "threeMonths", Days: 90, Price: 19999, Label: "3 Ay"},
	{ID: "sixMonths", Days: 180, Price: 34999, Label: "6 Ay"},
	{ID: "year", Days: 365, Price: 59999, Label: "1 Yıl"},
}
