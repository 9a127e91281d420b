package a

type cents float64

type Payment struct {
	Amount      float64  // want "money field Amount is a float; use decimal.Decimal"
	Balance     *float32 // want "money field Balance is a float; use decimal.Decimal"
	TotalFee    cents    // want "money field TotalFee is a float; use decimal.Decimal"
	Rate        float64
	AmountCents int64
	Label       string
}

type view struct {
	availableBalance, currentBalance float64 // want "money field availableBalance is a float" "money field currentBalance is a float"
	price                            string
}

func local() {
	_ = struct {
		Amount float32 // want "money field Amount is a float"
	}{}
}
