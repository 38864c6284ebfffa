// @title Hipot Service API
// @version 1.0.0
// @description API стенда высоковольтных испытаний: управление реле и hi-pot источником, запуск последовательности испытаний, поток событий и выгрузка результатов в PostgreSQL и Kafka.
// @host localhost:8083
// @BasePath /api/v1
package main

import "github.com/iwtcode/hipotService/internal/app"

func main() {
	// Создаем и запускаем новый экземпляр приложения fx
	app.New().Run()
}
