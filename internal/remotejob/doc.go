// Package remotejob запускает внешнюю задачу трансформации и ждёт её завершения.
//
// DockerJob выполняет `docker run --rm` на удалённом docker daemon
// (tcp://docker-proxy:2375) в сети Spark master'а. Ненулевой код выхода
// возвращается как ErrAbnormalExit.
package remotejob
