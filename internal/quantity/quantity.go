// Package quantity keeps cart line quantities inside their stock bounds.
//
// Removing a line is never a side effect of decrementing: the lowest quantity
// any function here returns is 1.
package quantity

import "github.com/fjod/go_cart/cartsync/internal/domain"

// Ceiling is the largest quantity allowed for the given stock snapshot.
// Out-of-stock lines keep a ceiling of 1 so they stay displayable.
func Ceiling(stockLimit int) int {
	if stockLimit < 1 {
		return 1
	}
	return stockLimit
}

// Clamp normalises an absolute quantity into [1, Ceiling(stockLimit)].
// clamped is true only when the requested value exceeded the stock ceiling.
func Clamp(qty, stockLimit int) (int, bool) {
	ceiling := Ceiling(stockLimit)
	if qty > ceiling {
		return ceiling, true
	}
	if qty < 1 {
		return 1, false
	}
	return qty, false
}

// SetQuantity applies delta to the line quantity and clamps the result.
// Callers surface clamped as a "stock limit reached" signal.
func SetQuantity(line domain.CartLine, delta int) (int, bool) {
	return Clamp(line.Quantity+delta, line.StockLimit)
}
