// Package scheduler запускает периодическое обслуживание хранилища по
// cron-расписанию (github.com/robfig/cron/v3): проверку структуры схемы
// и резервное копирование.
//
// Выполнения одной задачи не перекрываются, паника задачи превращается
// в ошибку, хуки позволяют снимать метрики.
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: logger})
//	_ = s.Add(scheduler.Job{
//		Name:     "verify",
//		Schedule: "0 */15 * * * *",
//		Timeout:  time.Minute,
//		Run: func(ctx context.Context) error {
//			_, err := controller.Verify(ctx)
//			return err
//		},
//	})
//	s.Start()
//	defer s.Stop(context.Background())
package scheduler
