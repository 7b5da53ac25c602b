package utils

// Map applies fn to each element of slice and returns the results in order.
func Map[T, U any](slice []T, fn func(T) U) []U {
	result := make([]U, len(slice))
	for i, v := range slice {
		result[i] = fn(v)
	}
	return result
}

// Filter returns the elements that satisfy predicate, preserving order.
func Filter[T any](slice []T, predicate func(T) bool) []T {
	var result []T
	for _, v := range slice {
		if predicate(v) {
			result = append(result, v)
		}
	}
	return result
}

// Find returns the first element that satisfies predicate.
func Find[T any](slice []T, predicate func(T) bool) (T, bool) {
	for _, v := range slice {
		if predicate(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// FlatMap applies fn to each element and concatenates the resulting slices.
func FlatMap[T, U any](slice []T, fn func(T) []U) []U {
	var result []U
	for _, v := range slice {
		result = append(result, fn(v)...)
	}
	return result
}

// Some reports whether at least one element satisfies predicate.
func Some[T any](slice []T, predicate func(T) bool) bool {
	_, ok := Find(slice, predicate)
	return ok
}

// Count returns how many elements satisfy predicate.
func Count[T any](slice []T, predicate func(T) bool) int {
	return Reduce(slice, func(count int, v T) int {
		if predicate(v) {
			return count + 1
		}
		return count
	}, 0)
}

// Reduce folds fn over slice starting from initial.
func Reduce[T, U any](slice []T, fn func(U, T) U, initial U) U {
	result := initial
	for _, v := range slice {
		result = fn(result, v)
	}
	return result
}

// Contains reports whether value is present in slice.
func Contains[T comparable](slice []T, value T) bool {
	return Some(slice, func(v T) bool { return v == value })
}

// Chunk splits slice into consecutive groups of at most size elements.
// A non-positive size yields a single group.
func Chunk[T any](slice []T, size int) [][]T {
	if len(slice) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{slice}
	}
	chunks := make([][]T, 0, (len(slice)+size-1)/size)
	for len(slice) > size {
		chunks = append(chunks, slice[:size])
		slice = slice[size:]
	}
	return append(chunks, slice)
}
