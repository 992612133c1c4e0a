// Package pricing содержит функции расчёта цен с учётом скидок.
package pricing

import "math"

// PriceWithDiscount возвращает цену за вычетом процентной скидки.
// Сумма скидки округляется вверх до целой денежной единицы.
func PriceWithDiscount(price, discount float64) float64 {
	return price - math.Ceil(price*discount/100)
}

// MinorUnits переводит цену в минимальные денежные единицы платёжной системы.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
