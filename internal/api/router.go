package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/clinic-records/internal/auth"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/middleware"
)

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	Timeout        time.Duration
	CORSOrigins    []string
}

type Router struct {
	handler        *Handler
	authMiddleware *auth.Middleware
	cfg            RouterConfig
}

func NewRouter(handler *Handler, authMiddleware *auth.Middleware, cfg RouterConfig) *Router {
	return &Router{
		handler:        handler,
		authMiddleware: authMiddleware,
		cfg:            cfg,
	}
}

func (r *Router) SetupRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.CORS(r.cfg.CORSOrigins...),
		middleware.AuditContext(),
		middleware.Timeout(r.cfg.Timeout),
	)
	if r.cfg.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(rate.Limit(r.cfg.RateLimitRPS), r.cfg.RateLimitBurst))
	}

	h := r.handler
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.Use(middleware.Audit(h.svc.Audit, logger))
	{
		api.POST("/login/", h.Login)
		api.POST("/registro/", h.Register)
		api.GET("/especialidades/", h.ListSpecialties)

		requireAuth := r.authMiddleware.RequireAuth()
		admin := r.authMiddleware.RequireRoles(directory.RoleAdmin)
		staff := r.authMiddleware.RequireRoles(directory.RoleAdmin, directory.RoleDoctor)

		protected := api.Group("")
		protected.Use(requireAuth)
		{
			protected.POST("/cambiar-contrasena/", h.ChangePassword)
			protected.GET("/perfil/", h.Profile)

			protected.POST("/resetear-contrasena/", admin, h.ResetPassword)
			adminGroup := protected.Group("/admin", admin)
			{
				adminGroup.GET("/usuarios/", h.ListUsers)
				adminGroup.POST("/usuarios/", h.CreateUser)
				adminGroup.GET("/roles/", h.ListRoles)
				adminGroup.GET("/auditoria/", h.AuditLog)
				adminGroup.POST("/citas/", h.CreateAdminAppointment)
			}

			// Patients
			protected.GET("/pacientes/", staff, h.ListPatients)
			protected.POST("/pacientes/", admin, h.CreatePatient)
			protected.GET("/pacientes/:id/", h.GetPatient)
			protected.PUT("/pacientes/:id/", admin, h.UpdatePatient)
			protected.DELETE("/pacientes/:id/", admin, h.DeletePatient)
			protected.GET("/buscar-paciente/", staff, h.SearchPatients)

			// Doctors and specialties
			protected.GET("/medicos/", h.ListDoctors)
			protected.POST("/medicos/", admin, h.CreateDoctor)
			protected.GET("/medicos/:id/", h.GetDoctor)
			protected.PUT("/medicos/:id/", admin, h.UpdateDoctor)
			protected.DELETE("/medicos/:id/", admin, h.DeleteDoctor)
			protected.GET("/buscar-medico/", h.SearchDoctors)
			protected.POST("/especialidades/", admin, h.CreateSpecialty)
			protected.PUT("/especialidades/:id/", admin, h.UpdateSpecialty)
			protected.DELETE("/especialidades/:id/", admin, h.DeleteSpecialty)

			// Clinical records
			protected.GET("/consultas/", h.ListConsultations)
			protected.POST("/consultas/", h.CreateConsultation)
			protected.GET("/consultas/:id/", h.GetConsultation)
			protected.DELETE("/consultas/:id/", h.DeleteConsultation)
			protected.GET("/diagnosticos/", h.ListDiagnoses)
			protected.POST("/diagnosticos/", h.CreateDiagnosis)
			protected.GET("/diagnosticos/consulta/:id/", h.DiagnosesByConsultation)
			protected.GET("/diagnosticos/paciente/:id/", h.DiagnosesByPatient)
			protected.DELETE("/diagnosticos/:id/", h.DeleteDiagnosis)
			protected.GET("/tratamientos/", h.ListTreatments)
			protected.POST("/tratamientos/", h.CreateTreatment)
			protected.DELETE("/tratamientos/:id/", h.DeleteTreatment)
			protected.GET("/antecedentes/:patientId/", h.GetBackground)
			protected.PUT("/antecedentes/:patientId/", h.SaveBackground)
			protected.GET("/historia-clinica/paciente/:id/", h.ClinicalHistory)

			// Exams
			protected.GET("/tipo-examenes/", h.ListExamTypes)
			protected.POST("/tipo-examenes/", h.CreateExamType)
			protected.PUT("/tipo-examenes/:id/", h.UpdateExamType)
			protected.DELETE("/tipo-examenes/:id/", h.DeleteExamType)
			protected.GET("/examenes/", h.ListExams)
			protected.POST("/examenes/", h.CreateExam)
			protected.PUT("/examenes/:id/completar/", h.CompleteExam)

			// Appointments
			protected.POST("/paciente/citas/", h.CreatePatientAppointment)
			protected.GET("/paciente/medicos/", h.DoctorsForPatients)
			protected.GET("/citas/", h.ListAppointments)
			protected.POST("/citas/", h.CreateAppointment)
			protected.GET("/citas/medico/", h.DoctorCalendar)
			protected.GET("/citas/paciente/", h.PatientCalendar)
			protected.GET("/citas/todas/", admin, h.AllCalendar)
			protected.GET("/citas/:id/", h.GetAppointment)
			protected.PUT("/citas/:id/", h.UpdateAppointment)
			protected.DELETE("/citas/:id/", h.DeleteAppointment)

			// Notifications
			protected.POST("/notificaciones/", h.CreateNotification)
			protected.GET("/mis-notificaciones/", h.MyNotifications)
			protected.PUT("/notificaciones/:id/leida/", h.MarkNotificationRead)

			// Clinic profile
			protected.GET("/consultorio/activo/", h.ActiveClinic)
			protected.POST("/consultorio/guardar/", h.SaveClinic)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
