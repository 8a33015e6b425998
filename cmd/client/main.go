package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"slack-calendar/internal/domain"
)

type taskStatusResponse struct {
	TaskID       string                  `json:"task_id"`
	Status       string                  `json:"status"`
	Report       *domain.IngestionReport `json:"report,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
}

func main() {
	var (
		serverAddr string
		interval   time.Duration
	)
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "Server address")
	flag.DurationVar(&interval, "poll", 2*time.Second, "Task status poll interval")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("Usage: client [flags] <slack-export.zip>")
	}
	path := flag.Arg(0)

	taskID, err := upload(serverAddr, path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Задача создана с идентификатором: %s\n", taskID)

	client := &http.Client{Timeout: 30 * time.Second}
	for {
		time.Sleep(interval)

		status, err := poll(client, serverAddr, taskID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Статус задачи: %s\n", status.Status)

		switch status.Status {
		case "completed":
			printReport(status.Report)
			return
		case "failed":
			fmt.Printf("Задача не выполнена: %s\n", status.ErrorMessage)
			printReport(status.Report)
			os.Exit(1)
		case "pending", "processing":
			continue
		default:
			log.Fatalf("Неизвестный статус задачи: %s", status.Status)
		}
	}
}

// upload отправляет архив полем zipfile и возвращает идентификатор задачи.
func upload(serverAddr, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("zipfile", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("не удалось создать файл формы: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("не удалось записать данные файла %s: %w", path, err)
	}
	// Завершающая граница
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("не удалось закрыть multipart writer: %w", err)
	}

	resp, err := http.Post(serverAddr+"/api/v1/slack/upload", writer.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("не удалось отправить запрос: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("сервер вернул статус %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var taskResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return "", fmt.Errorf("не удалось декодировать ответ: %w", err)
	}
	if taskResp["task_id"] == "" {
		return "", fmt.Errorf("идентификатор задачи не найден в ответе")
	}
	return taskResp["task_id"], nil
}

func poll(client *http.Client, serverAddr, taskID string) (taskStatusResponse, error) {
	var status taskStatusResponse
	resp, err := client.Get(fmt.Sprintf("%s/api/v1/tasks/%s", serverAddr, taskID))
	if err != nil {
		return status, fmt.Errorf("не удалось опросить статус задачи: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("сервер вернул статус: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("не удалось декодировать ответ статуса: %w", err)
	}
	return status, nil
}

func printReport(report *domain.IngestionReport) {
	if report == nil {
		return
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("Warning: failed to encode report: %v", err)
		return
	}
	fmt.Println("Отчет о загрузке:")
	fmt.Println(string(out))
}
