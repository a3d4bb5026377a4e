// Package config загружает конфигурацию демона из переменных окружения
// и спецификацию pipeline из файла (или встроенную stock_market).
package config
