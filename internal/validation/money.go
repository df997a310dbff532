// Package validation содержит функции валидации входных данных.
package validation

import "math"

// IsValidAmount проверяет, что сумма является конечным положительным числом,
// представимым в целых центах. Сумма, чьё значение в центах не помещается
// в int64, отклоняется: преобразование переполненного float в int64 дало бы
// отрицательные центы.
func IsValidAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return false
	}
	// float64(math.MaxInt64) равен 2^63; любое меньшее значение float
	// безопасно преобразуется в int64.
	return math.Round(amount*100) < float64(math.MaxInt64)
}

// ToCents переводит сумму в основных единицах в центы с округлением
// round-half-up. Вся последующая арифметика ведётся в целых центах,
// поэтому накопление ошибок плавающей точки исключено.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CentsToAmount переводит центы в основные единицы для сериализации.
func CentsToAmount(cents int64) float64 {
	return float64(cents) / 100
}
